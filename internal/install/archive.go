package install

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Byte ceilings applied while unpacking, mirroring the corpus's own
// defense against archive bombs during extraction.
const (
	maxArchiveBytes     int64 = 1 << 30
	maxArchiveFileBytes int64 = 512 << 20

	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

var (
	errArchiveEntryTooLarge     = errors.New("install: archive entry too large")
	errArchiveTotalTooLarge     = errors.New("install: archive exceeds total size limit")
	errArchiveEntryEscapesDir   = errors.New("install: archive entry path escapes destination directory")
	errUnknownArchiveExtension  = errors.New("install: unrecognized archive extension")
)

// unpack dispatches archivePath to the right extractor by extension,
// stripping prefix (the leading path component every entry shares, e.g.
// "node-v20.1.0-linux-x64/") when non-empty, per spec.md §4.10's
// archive_prefix contract.
//
// Grounded on _examples/sumicare-universal-asdf-plugin/plugins/asdf/
// archive.go's extractTarEntries/ExtractZip/ExtractGz, generalized here to
// dispatch across all extensions spec.md §4.10 names (that file only
// handled .tar.gz/.tar.xz/.zip/.gz) and to strip an archive_prefix.
func unpack(archivePath, destDir, prefix string) (ext string, err error) {
	base := strings.ToLower(filepath.Base(archivePath))

	switch {
	case strings.HasSuffix(base, ".tar.gz") || strings.HasSuffix(base, ".tgz"):
		return "tar.gz", extractTarGz(archivePath, destDir, prefix)
	case strings.HasSuffix(base, ".tar.xz") || strings.HasSuffix(base, ".txz"):
		return "tar.xz", extractTarXz(archivePath, destDir, prefix)
	case strings.HasSuffix(base, ".tar.bz2") || strings.HasSuffix(base, ".tbz2"):
		return "tar.bz2", extractTarBz2(archivePath, destDir, prefix)
	case strings.HasSuffix(base, ".tar"):
		return "tar", extractTarPlain(archivePath, destDir, prefix)
	case strings.HasSuffix(base, ".zip"):
		return "zip", extractZip(archivePath, destDir, prefix)
	case strings.HasSuffix(base, ".gz"):
		// Bare .gz: a single compressed file, not a tar stream.
		name := strings.TrimSuffix(filepath.Base(archivePath), ".gz")
		return "gz", extractGzFile(archivePath, filepath.Join(destDir, name))
	default:
		return "", fmt.Errorf("%w: %s", errUnknownArchiveExtension, base)
	}
}

func extractTarPlain(archivePath, destDir, prefix string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("install: opening archive: %w", err)
	}
	defer f.Close()
	return extractTarEntries(tar.NewReader(f), destDir, prefix)
}

func extractTarGz(archivePath, destDir, prefix string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("install: opening archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("install: creating gzip reader: %w", err)
	}
	defer gzr.Close()

	return extractTarEntries(tar.NewReader(gzr), destDir, prefix)
}

func extractTarXz(archivePath, destDir, prefix string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("install: opening archive: %w", err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("install: creating xz reader: %w", err)
	}

	return extractTarEntries(tar.NewReader(xzr), destDir, prefix)
}

func extractTarBz2(archivePath, destDir, prefix string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("install: opening archive: %w", err)
	}
	defer f.Close()

	return extractTarEntries(tar.NewReader(bzip2.NewReader(f)), destDir, prefix)
}

// stripPrefix removes the leading path component prefix from name, per
// archive_prefix. name is returned unchanged if it doesn't start with
// prefix.
func stripPrefix(name, prefix string) (string, bool) {
	if prefix == "" {
		return name, true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if name == prefix {
		return "", true
	}
	if rest, ok := strings.CutPrefix(name, prefix+"/"); ok {
		return rest, true
	}
	return "", false
}

func extractTarEntries(tr *tar.Reader, destDir, prefix string) error {
	var totalWritten int64
	cleanDestDir := filepath.Clean(destDir)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("install: reading tar: %w", err)
		}

		rel, ok := stripPrefix(filepath.ToSlash(header.Name), prefix)
		if !ok || rel == "" {
			continue
		}

		target := filepath.Join(cleanDestDir, filepath.Clean(rel))
		if !isPathWithinDir(target, cleanDestDir) {
			return fmt.Errorf("%w: %s", errArchiveEntryEscapesDir, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("install: creating directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if header.Size > maxArchiveFileBytes {
				return fmt.Errorf("%w: %d bytes", errArchiveEntryTooLarge, header.Size)
			}
			if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
				return fmt.Errorf("install: creating parent directory: %w", err)
			}

			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, header.FileInfo().Mode())
			if err != nil {
				return fmt.Errorf("install: creating file %s: %w", target, err)
			}

			lw := &limitedWriter{w: outFile, total: &totalWritten, maxTotal: maxArchiveBytes, maxFile: maxArchiveFileBytes}
			if _, err := io.Copy(lw, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("install: writing file %s: %w", target, err)
			}
			outFile.Close()

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
				return fmt.Errorf("install: creating parent directory: %w", err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("install: creating symlink %s: %w", target, err)
			}
		}
	}

	return nil
}

func extractZip(archivePath, destDir, prefix string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("install: opening zip archive: %w", err)
	}
	defer reader.Close()

	var totalWritten int64
	cleanDestDir := filepath.Clean(destDir)

	for _, zipFile := range reader.File {
		rel, ok := stripPrefix(filepath.ToSlash(zipFile.Name), prefix)
		if !ok || rel == "" {
			continue
		}

		target := filepath.Join(cleanDestDir, filepath.Clean(rel))
		if !isPathWithinDir(target, cleanDestDir) {
			return fmt.Errorf("%w: %s", errArchiveEntryEscapesDir, zipFile.Name)
		}

		if zipFile.UncompressedSize64 > uint64(maxArchiveFileBytes) {
			return fmt.Errorf("%w: %d bytes", errArchiveEntryTooLarge, zipFile.UncompressedSize64)
		}

		if zipFile.FileInfo().IsDir() {
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return fmt.Errorf("install: creating directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
			return fmt.Errorf("install: creating parent directory: %w", err)
		}

		rc, err := zipFile.Open()
		if err != nil {
			return fmt.Errorf("install: opening file in archive: %w", err)
		}

		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, zipFile.Mode())
		if err != nil {
			rc.Close()
			return fmt.Errorf("install: creating file %s: %w", target, err)
		}

		lw := &limitedWriter{w: outFile, total: &totalWritten, maxTotal: maxArchiveBytes, maxFile: maxArchiveFileBytes}
		if _, err := io.Copy(lw, rc); err != nil {
			outFile.Close()
			rc.Close()
			return fmt.Errorf("install: writing file %s: %w", target, err)
		}
		outFile.Close()
		rc.Close()
	}

	return nil
}

func extractGzFile(gzPath, destPath string) error {
	gzFile, err := os.Open(gzPath)
	if err != nil {
		return fmt.Errorf("install: opening gz file: %w", err)
	}
	defer gzFile.Close()

	gzr, err := gzip.NewReader(gzFile)
	if err != nil {
		return fmt.Errorf("install: creating gzip reader: %w", err)
	}
	defer gzr.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), dirPerm); err != nil {
		return fmt.Errorf("install: creating parent directory: %w", err)
	}
	outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("install: creating output file: %w", err)
	}
	defer outFile.Close()

	var totalWritten int64
	lw := &limitedWriter{w: outFile, total: &totalWritten, maxTotal: maxArchiveBytes, maxFile: maxArchiveFileBytes}
	if _, err := io.Copy(lw, gzr); err != nil {
		return fmt.Errorf("install: extracting gz: %w", err)
	}
	return nil
}

// limitedWriter caps both a single entry's size and the archive's running
// total, guarding against decompression bombs during unpack.
type limitedWriter struct {
	w        io.Writer
	total    *int64
	maxTotal int64
	maxFile  int64
	written  int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remainingFile := lw.maxFile - lw.written
	remainingTotal := lw.maxTotal - *lw.total
	if remainingFile <= 0 {
		return 0, errArchiveEntryTooLarge
	}
	if remainingTotal <= 0 {
		return 0, errArchiveTotalTooLarge
	}

	toWrite := int64(len(p))
	if toWrite > remainingFile {
		toWrite = remainingFile
	}
	if toWrite > remainingTotal {
		toWrite = remainingTotal
	}

	n, err := lw.w.Write(p[:toWrite])
	lw.written += int64(n)
	*lw.total += int64(n)
	if err != nil {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, errArchiveEntryTooLarge
	}
	return n, nil
}

func isPathWithinDir(path, dir string) bool {
	cleanDir := filepath.Clean(dir)
	cleanPath := filepath.Clean(path)
	if cleanDir == cleanPath {
		return true
	}
	return strings.HasPrefix(cleanPath, cleanDir+string(os.PathSeparator))
}

// isArchiveFile reports whether path's extension is one unpack recognizes,
// per spec.md §4.10's "not an archive, assume a binary and copy" fallback.
func isArchiveFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar.bz2", ".tbz2", ".tar", ".zip", ".gz"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
