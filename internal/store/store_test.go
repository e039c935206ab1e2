package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		wantErr bool
	}{
		{"refreshToken", false},
		{"codeVerifier", false},
		{"", true},
		{" refreshToken", true},
		{"../etc/passwd", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		if err := validateKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("validateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestPostgresConfigNormalization(t *testing.T) {
	t.Parallel()

	if _, err := normalizePostgresConfig(PostgresStoreConfig{}); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	cfg, err := normalizePostgresConfig(PostgresStoreConfig{DSN: " postgres://u@h/db ", Schema: "app"})
	if err != nil {
		t.Fatalf("normalizePostgresConfig() error = %v", err)
	}
	if cfg.Table != defaultCredentialTable || cfg.Owner != defaultOwner || cfg.DSN != "postgres://u@h/db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	s := &PostgresStore{cfg: cfg}
	if got := s.fullTableName(); got != `"app"."nowplaying_credentials"` {
		t.Fatalf("fullTableName() = %s", got)
	}
	if got := s.TableName(); got != "app.nowplaying_credentials" {
		t.Fatalf("TableName() = %s", got)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	if got := quoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdentifier() = %s", got)
	}
}

func TestObjectConfigValidation(t *testing.T) {
	t.Parallel()

	base := ObjectStoreConfig{Endpoint: "s3.local:9000", Bucket: "np", AccessKey: "ak", SecretKey: "sk"}
	tests := []struct {
		name   string
		mutate func(*ObjectStoreConfig)
		errSub string
	}{
		{"Valid", func(*ObjectStoreConfig) {}, ""},
		{"NoEndpoint", func(c *ObjectStoreConfig) { c.Endpoint = "" }, "endpoint"},
		{"NoBucket", func(c *ObjectStoreConfig) { c.Bucket = " " }, "bucket"},
		{"NoAccessKey", func(c *ObjectStoreConfig) { c.AccessKey = "" }, "access key"},
		{"NoSecretKey", func(c *ObjectStoreConfig) { c.SecretKey = "" }, "secret key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			_, err := NewObjectStore(cfg)
			if tt.errSub == "" {
				if err != nil {
					t.Fatalf("NewObjectStore() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("error = %v, want mention of %q", err, tt.errSub)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	s := &ObjectStore{cfg: ObjectStoreConfig{Prefix: "nowplaying", Owner: "alice"}}
	if got := s.objectKey("refreshToken"); got != "nowplaying/alice/refreshToken" {
		t.Fatalf("objectKey() = %s", got)
	}
	s.cfg.Prefix = ""
	if got := s.objectKey("refreshToken"); got != "alice/refreshToken" {
		t.Fatalf("objectKey() = %s", got)
	}
}

func TestIsObjectNotFound(t *testing.T) {
	t.Parallel()

	if isObjectNotFound(nil) {
		t.Fatalf("nil is not a not-found error")
	}
	if !isObjectNotFound(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}) {
		t.Fatalf("NoSuchKey should be not-found")
	}
	if isObjectNotFound(errors.New("boom")) {
		t.Fatalf("generic error reported as not-found")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, SQLiteStoreConfig{Path: filepath.Join(t.TempDir(), "db", "credentials.db")})
	if err != nil {
		t.Skipf("sqlite driver unavailable: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, ok, err := s.Get(ctx, "refreshToken"); err != nil || ok {
		t.Fatalf("Get() on empty store = %v, %v", ok, err)
	}
	if err = s.Set(ctx, "refreshToken", "RT1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err = s.Set(ctx, "refreshToken", "RT2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if value, ok, err := s.Get(ctx, "refreshToken"); err != nil || !ok || value != "RT2" {
		t.Fatalf("Get() = %q, %v, %v", value, ok, err)
	}
	if err = s.Delete(ctx, "refreshToken"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, "refreshToken"); ok {
		t.Fatalf("value survived Delete")
	}
	if err = s.Delete(ctx, "refreshToken"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLiteStore(context.Background(), SQLiteStoreConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
