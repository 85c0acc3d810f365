package source

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
)

// Archiver packs upload inputs into a single zstd compressed tar archive.
type Archiver struct {
	logger log.Logger
	level  zstd.EncoderLevel
}

// NewArchiver ...
func NewArchiver(logger log.Logger) *Archiver {
	return &Archiver{
		logger: logger,
		level:  zstd.SpeedDefault,
	}
}

// Compress writes the files listed in paths into archivePath. Entry names are
// relative to baseDir, files outside of it are stored by their base name.
func (a *Archiver) Compress(archivePath, baseDir string, paths []string) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive file: %w", cerr)
		}
	}()

	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(a.level))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, path := range paths {
		if err := a.addFile(tw, baseDir, path); err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}

	return nil
}

func (a *Archiver) addFile(tw *tar.Writer, baseDir, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		a.logger.Debugf("Skipping %s: not a regular file", path)
		return nil
	}

	name, err := filepath.Rel(baseDir, path)
	if err != nil || !isWithin(baseDir, path) {
		name = filepath.Base(path)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("create file info header: %w", err)
	}
	header.Name = filepath.ToSlash(name)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar file header: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}

	a.logger.Debugf("- %s", header.Name)
	return nil
}

// Decompress extracts an archive written by Compress into destinationDir.
func (a *Archiver) Decompress(archivePath, destinationDir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer in.Close() //nolint:errcheck

	zr, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar file: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		target := filepath.Join(destinationDir, filepath.FromSlash(header.Name))
		if !isWithin(destinationDir, target) {
			return fmt.Errorf("archive entry %s escapes the destination", header.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create target directories: %w", err)
		}

		if err := writeEntry(target, os.FileMode(header.Mode), tr); err != nil {
			return err
		}
	}
}

func writeEntry(target string, mode os.FileMode, r io.Reader) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy content to file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && (len(rel) < 3 || rel[:3] != ".."+string(filepath.Separator))
}
