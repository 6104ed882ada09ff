// Package images stores uploaded pictures, such as profile photos, and resolves their public URLs.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrInvalidPath = errors.New("invalid object path")

// Bucket is the file storage surface: upload by path, then hand out a public URL for it.
type Bucket interface {
	Upload(ctx context.Context, objectPath string, content io.Reader, size int64, contentType string) error
	PublicURL(objectPath string) string
}

// Storage is a Bucket backed by a local directory; files are expected to be served under PublicBase.
type Storage struct {
	Logger     logrus.FieldLogger
	Path       string
	PublicBase string
}

func New(logger logrus.FieldLogger, root string, publicBase string) (storage *Storage, err error) {
	logger.Info("initialising images store")

	// attempt to create an images directory if it doesn't exist
	if err = os.MkdirAll(root, 0750); err != nil {
		return nil, err
	}

	return &Storage{Logger: logger, Path: root, PublicBase: strings.TrimSuffix(publicBase, "/")}, nil
}

func (s *Storage) Upload(_ context.Context, objectPath string, content io.Reader, _ int64, _ string) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	var destination = filepath.Join(s.Path, filepath.FromSlash(clean))
	if err = os.MkdirAll(filepath.Dir(destination), 0750); err != nil {
		return err
	}

	// exclusive creation: uploads never overwrite each other
	file, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return fmt.Errorf("creating %s: %w", clean, err)
	}
	if _, err = io.Copy(file, content); err != nil {
		_ = file.Close()
		_ = os.Remove(destination)
		return fmt.Errorf("writing %s: %w", clean, err)
	}
	s.Logger.WithField("path", clean).Debug("image stored")
	return file.Close()
}

func (s *Storage) PublicURL(objectPath string) string {
	return joinURL(s.PublicBase, objectPath)
}

// CleanPath normalises a slash separated object path and refuses any attempt to climb out of the bucket.
func CleanPath(objectPath string) (string, error) {
	var clean = path.Clean("/" + objectPath)[1:]
	if clean == "" || clean == "." || strings.Contains(objectPath, "..") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

func joinURL(base, objectPath string) string {
	var segments = strings.Split(objectPath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + strings.Join(segments, "/")
}
