package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func exerciseStore(t *testing.T, store CredentialStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, KeyRefreshToken); err != nil || ok {
		t.Fatalf("empty store Get() = ok %v, err %v", ok, err)
	}
	if err := store.Set(ctx, KeyRefreshToken, "RT1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, KeyCodeVerifier, "verifier"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if value, ok, err := store.Get(ctx, KeyRefreshToken); err != nil || !ok || value != "RT1" {
		t.Fatalf("Get() = %q, %v, %v", value, ok, err)
	}
	if err := store.Delete(ctx, KeyCodeVerifier); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeyCodeVerifier); ok {
		t.Fatalf("deleted key still present")
	}
	if err := store.Delete(ctx, KeyCodeVerifier); err != nil {
		t.Fatalf("deleting a missing key should succeed, got %v", err)
	}
	if value, _, _ := store.Get(ctx, KeyRefreshToken); value != "RT1" {
		t.Fatalf("unrelated key lost: %q", value)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)
	exerciseStore(t, store)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %o, want 600", perm)
	}

	reopened := NewFileStore(path)
	if value, ok, _ := reopened.Get(context.Background(), KeyRefreshToken); !ok || value != "RT1" {
		t.Fatalf("value not persisted across instances: %q", value)
	}

	if err = reopened.Delete(context.Background(), KeyRefreshToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty store should remove its file, stat err = %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewFileStore(path).Get(context.Background(), KeyRefreshToken); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSealedStore(t *testing.T) {
	t.Parallel()

	inner := NewMemoryStore()
	sealed, err := NewSealedStore(inner, "correct horse battery staple")
	if err != nil {
		t.Fatalf("NewSealedStore() error = %v", err)
	}
	exerciseStore(t, sealed)

	raw, _, _ := inner.Get(context.Background(), KeyRefreshToken)
	if raw == "RT1" || !strings.HasPrefix(raw, sealedPrefix) {
		t.Fatalf("inner store holds plaintext: %q", raw)
	}

	reopened, err := NewSealedStore(inner, "correct horse battery staple")
	if err != nil {
		t.Fatalf("NewSealedStore() error = %v", err)
	}
	if value, ok, err := reopened.Get(context.Background(), KeyRefreshToken); err != nil || !ok || value != "RT1" {
		t.Fatalf("reopened Get() = %q, %v, %v", value, ok, err)
	}

	wrong, err := NewSealedStore(inner, "wrong passphrase")
	if err != nil {
		t.Fatalf("NewSealedStore() error = %v", err)
	}
	if _, _, err = wrong.Get(context.Background(), KeyRefreshToken); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("wrong key error = %v, want ErrSealedValue", err)
	}

	// A value sealed for one slot must not open under another.
	_ = inner.Set(context.Background(), KeyCodeVerifier, raw)
	if _, _, err = sealed.Get(context.Background(), KeyCodeVerifier); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("swapped slot error = %v, want ErrSealedValue", err)
	}
}

func TestNewSealedStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSealedStore(nil, "key"); err == nil {
		t.Fatalf("expected error for nil inner store")
	}
	if _, err := NewSealedStore(NewMemoryStore(), "  "); err == nil {
		t.Fatalf("expected error for empty passphrase")
	}
}

func TestCallbackListenURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		port    int
		want    string
		wantErr bool
	}{
		{name: "Unchanged", port: 0, want: "http://127.0.0.1:8888/callback"},
		{name: "Override", port: 9999, want: "http://127.0.0.1:9999/callback"},
		{name: "Invalid", port: 70000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := callbackListenURI("http://127.0.0.1:8888/callback", tt.port)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("callbackListenURI() = %q, %v", got, err)
			}
		})
	}
}

func TestCredentialStoreRegistry(t *testing.T) {
	t.Cleanup(func() { RegisterCredentialStore(nil) })

	RegisterCredentialStore(nil)
	first := GetCredentialStore()
	if _, ok := first.(*MemoryStore); !ok {
		t.Fatalf("default store = %T, want *MemoryStore", first)
	}
	if GetCredentialStore() != first {
		t.Fatal("default store should be created once")
	}

	custom := NewMemoryStore()
	RegisterCredentialStore(custom)
	if GetCredentialStore() != custom {
		t.Fatal("registered store not returned")
	}
}
