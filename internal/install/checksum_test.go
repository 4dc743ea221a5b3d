package install

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyChecksum_MatchesSha256ListingLine(t *testing.T) {
	dir := t.TempDir()
	downloadPath := filepath.Join(dir, "tool-linux-x64.tar.gz")
	require.NoError(t, os.WriteFile(downloadPath, []byte("archive-bytes"), 0o644))

	sum := sha256.Sum256([]byte("archive-bytes"))
	hexSum := hex.EncodeToString(sum[:])
	checksumPath := filepath.Join(dir, "CHECKSUMS.txt")
	require.NoError(t, os.WriteFile(checksumPath, []byte(hexSum+"  tool-linux-x64.tar.gz\n"), 0o644))

	ok, err := verifyChecksum(downloadPath, checksumPath, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChecksum_BareHashFile(t *testing.T) {
	dir := t.TempDir()
	downloadPath := filepath.Join(dir, "tool.zip")
	require.NoError(t, os.WriteFile(downloadPath, []byte("zip-bytes"), 0o644))

	sum := sha256.Sum256([]byte("zip-bytes"))
	hexSum := hex.EncodeToString(sum[:])
	checksumPath := filepath.Join(dir, "tool.zip.sha256")
	require.NoError(t, os.WriteFile(checksumPath, []byte(hexSum+"\n"), 0o644))

	ok, err := verifyChecksum(downloadPath, checksumPath, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyChecksum_MismatchReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	downloadPath := filepath.Join(dir, "tool.zip")
	require.NoError(t, os.WriteFile(downloadPath, []byte("zip-bytes"), 0o644))

	checksumPath := filepath.Join(dir, "tool.zip.sha256")
	require.NoError(t, os.WriteFile(checksumPath, []byte("deadbeef\n"), 0o644))

	ok, err := verifyChecksum(downloadPath, checksumPath, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlgoFromName_DetectsSha512AndMd5(t *testing.T) {
	assert.Equal(t, "sha512", algoFromName("tool.sha512"))
	assert.Equal(t, "md5", algoFromName("CHECKSUMS.md5"))
	assert.Equal(t, "sha256", algoFromName("tool.sha256"))
	assert.Equal(t, "sha256", algoFromName("tool.txt"))
}

func TestParseChecksumFile_NoMatchingEntryErrors(t *testing.T) {
	dir := t.TempDir()
	checksumPath := filepath.Join(dir, "CHECKSUMS.txt")
	require.NoError(t, os.WriteFile(checksumPath, []byte("abc123  other-file.tar.gz\n"), 0o644))

	_, _, err := parseChecksumFile(checksumPath, "tool.tar.gz")
	require.Error(t, err)
}
