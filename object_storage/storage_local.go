package object_storage

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/promptbench/promptbench/config"
)

// localStorage keeps artifacts on the local filesystem. It is the default
// backend for single node deployments and tests.
type localStorage struct {
	baseDir string
}

func NewLocalStorage(c *config.PromptbenchConfig) localStorage {
	ls := new(localStorage)
	ls.baseDir = "/tmp/promptbench-artifacts"
	if c.ObjectStorage != nil && c.ObjectStorage.Url != "" {
		ls.baseDir = c.ObjectStorage.Url
	}
	return *ls
}

func (l localStorage) GetUrl(filename string) string {
	return fmt.Sprintf("file://%s", filepath.Join(l.baseDir, filename))
}

func (l localStorage) Upload(filename string, content io.ReadCloser) error {
	defer content.Close()

	path := filepath.Join(l.baseDir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		return err
	}
	return nil
}

func (l localStorage) Delete(filename string) error {
	path := filepath.Join(l.baseDir, filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return FileNotFoundError()
		}
		return err
	}
	return nil
}

func (l localStorage) Download(filename string) ([]byte, error) {
	path := filepath.Join(l.baseDir, filename)
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, FileNotFoundError()
		}
		return nil, err
	}
	return bytes, nil
}
