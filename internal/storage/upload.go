// Package storage validates multipart uploads and streams them to the blob store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxFileSize = 5 * 1024 * 1024

var (
	ErrFileTooLarge  = errors.New("file exceeds 5MB")
	ErrFileType      = errors.New("file type not allowed")
	ErrNotConfigured = errors.New("blob storage not configured")
)

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// Blob is the object store uploads are written to.
type Blob interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Uploader struct {
	blob Blob
}

// NewUploader accepts a nil blob; uploads then fail with ErrNotConfigured.
func NewUploader(blob Blob) *Uploader {
	return &Uploader{blob: blob}
}

// Save validates fh and stores it under prefix with a random name, returning
// the stored reference.
func (u *Uploader) Save(ctx context.Context, prefix string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxFileSize {
		return "", fmt.Errorf("%s: %w", fh.Filename, ErrFileTooLarge)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%s: %w", fh.Filename, ErrFileType)
	}
	if u == nil || u.blob == nil {
		return "", ErrNotConfigured
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key := strings.TrimSuffix(prefix, "/") + "/" + uuid.NewString() + ext
	return u.blob.Put(ctx, key, contentType, io.LimitReader(f, MaxFileSize))
}
