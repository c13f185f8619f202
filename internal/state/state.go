// Package state persists reading progress and settings.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	appName       = "bivium"
	stateFileName = "state.json"
)

// ErrNotFound is returned by backends for missing keys.
var ErrNotFound = errors.New("state: key not found")

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("state: corrupt record")

// Backend is a durable key-value namespace.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// StateDir returns XDG_STATE_HOME/bivium or ~/.local/state/bivium
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

// FileBackend keeps all keys in one JSON document, rewritten on every change.
type FileBackend struct {
	path string
	data map[string]json.RawMessage
	mu   sync.RWMutex
}

// OpenFileBackend creates or loads dir/state.json. An empty dir means StateDir().
func OpenFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		dir = StateDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	b := &FileBackend{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]json.RawMessage),
	}
	if err := b.load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", b.path, err)
	}
	return b, nil
}

// Path returns the backing file.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *FileBackend) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("state: value for %q is not JSON", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append(json.RawMessage(nil), value...)
	return b.save()
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.save()
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &b.data)
}

func (b *FileBackend) save() error {
	data, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
