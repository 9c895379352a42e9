// Package compression extracts addon distribution archives into the cache.
package compression

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kodidev/kodidev/internal/security"
)

// maxFileSize caps a single extracted file (100MB) to guard against
// zip bombs.
const maxFileSize = 100 * 1024 * 1024

// ExtractZip unpacks the whole archive into destRoot, preserving the
// archive's directory layout. Addon packages always carry a single
// top-level directory named after the addon id.
func ExtractZip(archivePath, destRoot string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := security.ValidateFilePath(f.Name, destRoot); err != nil {
			return fmt.Errorf("unsafe entry %q in %s: %w", f.Name, archivePath, err)
		}

		destPath := filepath.Join(destRoot, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := extractFile(f, destPath); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open file in archive: %w", err)
	}
	defer rc.Close()

	mode := f.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) // #nosec G304 - destination validated above
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	limitedReader := security.NewLimitedReader(rc, maxFileSize)
	_, copyErr := io.Copy(out, limitedReader)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, closeErr)
	}
	return nil
}
