package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

const (
	blobExt  = ".blob"
	fileMode = 0o600
)

// FileStore persists every key as one object under a base URL. Any afs location works:
// a local directory, mem://localhost/... for tests, or a mounted profile directory.
// Object names are base64url encoded keys so that arbitrary keys stay path safe.
type FileStore struct {
	mu      sync.RWMutex
	baseURL string
	fs      afs.Service
}

// NewFileStore creates a Store rooted at baseURL.
func NewFileStore(baseURL string) Store {
	return &FileStore{baseURL: baseURL, fs: afs.New()}
}

func (f *FileStore) objectURL(key string) string {
	return url.Join(f.baseURL, base64.RawURLEncoding.EncodeToString([]byte(key))+blobExt)
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	URL := f.objectURL(key)
	ok, err := f.fs.Exists(ctx, URL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check %v: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %v: %w", key, err)
	}
	return data, true, nil
}

// Put replaces the object holding key.
func (f *FileStore) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fs.Upload(ctx, f.objectURL(key), fileMode, bytes.NewReader(value)); err != nil {
		return fmt.Errorf("failed to write %v: %w", key, err)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	URL := f.objectURL(key)
	ok, err := f.fs.Exists(ctx, URL)
	if err != nil || !ok {
		return err
	}
	if err = f.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete %v: %w", key, err)
	}
	return nil
}

func (f *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ok, err := f.fs.Exists(ctx, f.baseURL)
	if err != nil || !ok {
		return nil, err
	}
	objects, err := f.fs.List(ctx, f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %v: %w", f.baseURL, err)
	}
	var keys []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), blobExt) {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(object.Name(), blobExt))
		if err != nil {
			continue
		}
		if key := string(decoded); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
