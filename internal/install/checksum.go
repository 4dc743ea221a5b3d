// Checksum verification: spec.md §4.10's default (non-plugin-delegated)
// strategy. Grounded on the algorithm description in spec.md itself (no
// checksum.rs survived the original_source/ filtering), using the
// standard library's hash packages and github.com/jedisct1/go-minisign
// for the checksum_public_key branch — the one Minisign/signify-verifying
// package the teacher's (indirect) dependency closure already names.
package install

import (
	"bufio"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// verifyChecksum implements spec.md §4.10's default checksum strategy:
// if publicKey is set, treat checksumFile as a Minisign/signify signature
// over downloadFile; otherwise parse it as a `<hash>  <filename>` listing
// (or a single bare hash) and compare a computed digest.
func verifyChecksum(downloadFile, checksumFile, publicKey string) (bool, error) {
	if publicKey != "" {
		return verifyMinisign(downloadFile, checksumFile, publicKey)
	}

	want, algo, err := parseChecksumFile(checksumFile, filepath.Base(downloadFile))
	if err != nil {
		return false, err
	}

	got, err := digestFile(downloadFile, algo)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(want, got), nil
}

// parseChecksumFile reads checksumFile, returning the hex digest to
// compare against and the algorithm it was computed with. Lines are
// accepted in `<hash>␠␠<filename>` form (the line naming downloadBasename
// wins) or as a single bare hash with no filename column. The algorithm is
// inferred from the checksum file's own name (sha512/md5), defaulting to
// SHA-256.
func parseChecksumFile(path, downloadBasename string) (hash, algo string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("install: reading checksum file: %w", err)
	}

	algo = algoFromName(filepath.Base(path))

	var bareHash string
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 1 {
			if bareHash == "" {
				bareHash = fields[0]
			}
			continue
		}
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		if name == downloadBasename {
			return fields[0], algo, nil
		}
	}

	if bareHash != "" {
		return bareHash, algo, nil
	}

	return "", "", fmt.Errorf("install: no checksum entry for %s in %s", downloadBasename, path)
}

// algoFromName infers a checksum algorithm from the checksum file's own
// name (e.g. "node-v20.1.0.sha512" or "CHECKSUMS.md5"), defaulting to
// SHA-256 per spec.md §4.10.
func algoFromName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "sha512"):
		return "sha512"
	case strings.Contains(lower, "md5"):
		return "md5"
	default:
		return "sha256"
	}
}

func newHasher(algo string) hash.Hash {
	switch algo {
	case "sha512":
		return sha512.New()
	case "md5":
		return md5.New()
	default:
		return sha256.New()
	}
}

func digestFile(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("install: opening download for checksum: %w", err)
	}
	defer f.Close()

	h := newHasher(algo)
	r := bufio.NewReader(f)
	if _, err := r.WriteTo(h); err != nil {
		return "", fmt.Errorf("install: hashing download: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyMinisign checks checksumFile as a Minisign/signify signature over
// downloadFile's raw bytes, using publicKey (the base64-encoded Minisign
// public key a plugin's download_prebuilt declares).
func verifyMinisign(downloadFile, checksumFile, publicKey string) (bool, error) {
	pk, err := minisign.NewPublicKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("install: parsing minisign public key: %w", err)
	}

	sigData, err := os.ReadFile(checksumFile)
	if err != nil {
		return false, fmt.Errorf("install: reading minisign signature: %w", err)
	}
	sig, err := minisign.DecodeSignature(string(sigData))
	if err != nil {
		return false, fmt.Errorf("install: decoding minisign signature: %w", err)
	}

	message, err := os.ReadFile(downloadFile)
	if err != nil {
		return false, fmt.Errorf("install: reading download for signature check: %w", err)
	}

	return pk.Verify(message, sig)
}
