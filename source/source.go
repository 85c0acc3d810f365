// Package source provides the byte sources an upload reads its slices from.
// Every source is an io.ReaderAt so a slice can be read again when it has to
// be resent.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Content is a randomly readable byte source of a known size.
type Content interface {
	io.ReaderAt
	Size() int64
}

// FromBytes wraps an in-memory buffer.
func FromBytes(b []byte) Content {
	return bytes.NewReader(b)
}

// File is a local file opened for uploading.
type File struct {
	*os.File
	size int64
}

// OpenFile opens path and records its current size.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &File{File: f, size: info.Size()}, nil
}

// Size ...
func (f *File) Size() int64 {
	return f.size
}
