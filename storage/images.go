package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"
)

// ImageStore persists plaque photographs and hands back a public URL
// for serving. Keys follow the original site's YYYYMMDD/HHMMSS-name
// layout so uploads stay roughly time-ordered in the bucket.
type ImageStore interface {
	// Put stores an image and returns its storage key and public URL.
	Put(name string, data []byte, contentType string) (key, url string, err error)

	// Delete removes a previously stored image. Missing keys are not
	// an error.
	Delete(key string) error
}

// ImageKey builds the dated storage key for an upload.
func ImageKey(now time.Time, name string) string {
	base := path.Base(name)
	if base == "." || base == "/" || base == "" {
		base = "plaque.jpg"
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102/150405"), base)
}

// LocalImageStore keeps images on local disk, served by the HTTP
// layer under baseURL.
type LocalImageStore struct {
	dir     string
	baseURL string
}

// NewLocalImageStore creates the image directory if needed.
func NewLocalImageStore(dir, baseURL string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalImageStore{dir: dir, baseURL: baseURL}, nil
}

// Put writes the image under the dated key.
func (l *LocalImageStore) Put(name string, data []byte, contentType string) (string, string, error) {
	key := ImageKey(time.Now(), name)
	full := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", "", err
	}
	return key, l.baseURL + "/" + key, nil
}

// Delete removes the image file, ignoring missing keys.
func (l *LocalImageStore) Delete(key string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Dir exposes the root directory for static file serving.
func (l *LocalImageStore) Dir() string { return l.dir }
