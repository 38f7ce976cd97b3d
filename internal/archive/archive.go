// Package archive packages downloaded media into a zip and removes the
// working directory afterwards. Both operations are invoked once, after the
// fetch phase; a build failure is surfaced to the caller, never retried.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Build creates the archive at archivePath containing every regular file
// under workDir, stored under paths relative to workDir's parent so the
// archive unpacks into a single directory. A pre-existing archive at the
// same path is replaced.
func Build(ctx context.Context, archivePath, workDir string, logger *slog.Logger) error {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing archive %s: %w", archivePath, err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", archivePath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	fileCount := 0

	walkErr := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(filepath.Dir(workDir), path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header %s: %w", path, err)
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", rel, err)
		}
		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		_, copyErr := io.Copy(w, in)
		in.Close()
		if copyErr != nil {
			return fmt.Errorf("write zip entry %s: %w", rel, copyErr)
		}
		fileCount++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		os.Remove(archivePath)
		return fmt.Errorf("build archive from %s: %w", workDir, walkErr)
	}

	if err := zw.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("finalize archive %s: %w", archivePath, err)
	}
	logger.Info("Created archive.", slog.String("path", archivePath), slog.Int("files", fileCount))
	return nil
}

// Cleanup removes the working download directory and everything under it.
func Cleanup(workDir string, logger *slog.Logger) error {
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("remove work dir %s: %w", workDir, err)
	}
	logger.Info("Cleaned up working directory.", slog.String("path", workDir))
	return nil
}
