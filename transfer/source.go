package transfer

import (
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when the source type cannot be detected.
const DefaultContentType = "video/mp4"

// Source supplies the bytes of an upload.
type Source interface {
	// Open returns a fresh reader positioned at the first byte.
	Open() (io.ReadCloser, error)
	// Size is the total byte count, or -1 when unknown.
	Size() int64
	// ContentType is the MIME type sent with the PUT.
	ContentType() string
}

// FileSource reads an upload from a local file.
type FileSource struct {
	path        string
	size        int64
	contentType string
}

// NewFileSource stats path and sniffs its content type. Non-regular files
// (pipes, devices) report an unknown size.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	size := info.Size()
	contentType := DefaultContentType
	if info.Mode().IsRegular() {
		if mtype, err := mimetype.DetectFile(path); err == nil && !mtype.Is("application/octet-stream") {
			contentType = mtype.String()
		}
	} else {
		size = -1
	}

	return &FileSource{path: path, size: size, contentType: contentType}, nil
}

// Path returns the file path, which is what the journal records.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Open() (io.ReadCloser, error) { return os.Open(s.path) }

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) ContentType() string { return s.contentType }
