package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Local stores photos as files named <ulid><ext> under one directory.
type Local struct {
	dir     string
	baseURL string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewLocal(dir, baseURL string) (*Local, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &Local{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (l *Local) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := l.newID() + extensionFor(mimeType)

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, ref)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return ref, nil
}

func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := l.path(ref)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) URL(ref string) string {
	if l.baseURL == "" {
		return ref
	}
	return l.baseURL + "/" + ref
}

func (l *Local) newID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
}

// path rejects anything that is not a bare <ulid><ext> name.
func (l *Local) path(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	ext := filepath.Ext(ref)
	if _, err := ulid.ParseStrict(strings.TrimSuffix(ref, ext)); err != nil {
		return "", ErrInvalidRef
	}
	if ref != filepath.Base(ref) {
		return "", ErrInvalidRef
	}
	return filepath.Join(l.dir, ref), nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	default:
		return ".bin"
	}
}
