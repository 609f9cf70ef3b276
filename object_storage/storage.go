package object_storage

import (
	"io"
)

// StorageInterface is where raw model outputs get archived so large responses
// do not have to live in the result rows.
type StorageInterface interface {
	Upload(filename string, content io.ReadCloser) error
	Delete(filename string) error
	GetUrl(filename string) string
	Download(filename string) ([]byte, error)
}

type FileNotFound struct {
	err string
}

func (f FileNotFound) Error() string {
	return f.err
}

func FileNotFoundError() error {
	return FileNotFound{"File not found"}
}
