package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fb, err := OpenFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileBackend failed: %v", err)
	}
	sb, err := OpenSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteBackend failed: %v", err)
	}
	t.Cleanup(func() { sb.Close() })
	return map[string]Backend{"file": fb, "sqlite": sb}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := b.Put(ctx, "k", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := b.Put(ctx, "k", []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Put overwrite failed: %v", err)
			}
			got, err := b.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != `{"a":2}` {
				t.Errorf("Get = %s", got)
			}

			if err := b.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete error = %v", err)
			}
			if err := b.Delete(ctx, "k"); err != nil {
				t.Errorf("Delete of missing key failed: %v", err)
			}
		})
	}
}

func TestFileBackendPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)
	ctx := context.Background()

	b1, err := OpenFileBackend("")
	if err != nil {
		t.Fatalf("OpenFileBackend failed: %v", err)
	}
	if want := filepath.Join(tmpDir, "bivium", "state.json"); b1.Path() != want {
		t.Errorf("Path = %s, want %s", b1.Path(), want)
	}
	if err := b1.Put(ctx, "k", []byte(`[1,2,3]`)); err != nil {
		t.Fatal(err)
	}

	b2, err := OpenFileBackend("")
	if err != nil {
		t.Fatalf("OpenFileBackend failed: %v", err)
	}
	got, err := b2.Get(ctx, "k")
	if err != nil || string(got) != `[1,2,3]` {
		t.Errorf("persisted value = %s, %v", got, err)
	}
}

func TestFileBackendRejectsNonJSON(t *testing.T) {
	b, err := OpenFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Put(context.Background(), "k", []byte("not json")); err == nil {
		t.Error("Put accepted a non-JSON value")
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "state.json"), []byte("{broken"), 0644)
	if _, err := OpenFileBackend(dir); err == nil {
		t.Error("OpenFileBackend accepted a corrupt file")
	}
}

func TestSQLiteBackendPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b1, err := OpenSQLiteBackend(dir)
	if err != nil {
		t.Fatalf("OpenSQLiteBackend failed: %v", err)
	}
	if err := b1.Put(ctx, "k", []byte(`"v"`)); err != nil {
		t.Fatal(err)
	}
	if err := b1.Close(); err != nil {
		t.Fatal(err)
	}

	b2, err := OpenSQLiteBackend(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b2.Close()
	got, err := b2.Get(ctx, "k")
	if err != nil || string(got) != `"v"` {
		t.Errorf("persisted value = %s, %v", got, err)
	}
}
