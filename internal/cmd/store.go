package cmd

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/NowPlaying/internal/config"
	"github.com/router-for-me/NowPlaying/internal/misc"
	"github.com/router-for-me/NowPlaying/internal/store"
	"github.com/router-for-me/NowPlaying/internal/util"
	sdkAuth "github.com/router-for-me/NowPlaying/sdk/auth"
	log "github.com/sirupsen/logrus"
)

const storeInitTimeout = 30 * time.Second

// credentialStore is the store selected by configuration together with the
// release function for its connections.
type credentialStore struct {
	sdkAuth.CredentialStore
	// path is the local file backing the store, if any; it is watched for
	// changes made by another process.
	path string
	// location is a human readable description of where credentials live.
	location string
	close    func()
}

// openCredentialStore builds the configured backend and wraps it in a SealedStore
// when an encryption key is set. The result is also registered as the global store.
func openCredentialStore(ctx context.Context, cfg *config.Config) (*credentialStore, error) {
	sc := cfg.CredentialStore
	result := &credentialStore{close: func() {}}

	initCtx, cancel := context.WithTimeout(ctx, storeInitTimeout)
	defer cancel()

	switch sc.Type {
	case "", config.StoreMemory:
		result.CredentialStore = sdkAuth.NewMemoryStore()
		result.location = misc.CredentialLocation(config.StoreMemory, "")
	case config.StoreFile:
		path, err := storePath(sc.Path, "credentials.json")
		if err != nil {
			return nil, fmt.Errorf("resolve credential file: %w", err)
		}
		result.CredentialStore = sdkAuth.NewFileStore(path)
		result.path = path
		result.location = misc.CredentialLocation(config.StoreFile, path)
	case config.StoreSQLite:
		path, err := storePath(sc.Path, "credentials.db")
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite path: %w", err)
		}
		sqliteStore, err := store.NewSQLiteStore(initCtx, store.SQLiteStoreConfig{Path: path})
		if err != nil {
			return nil, err
		}
		result.CredentialStore = sqliteStore
		result.close = closer("sqlite", sqliteStore.Close)
		result.location = misc.CredentialLocation(config.StoreSQLite, path)
	case config.StorePostgres:
		pgStore, err := store.NewPostgresStore(initCtx, store.PostgresStoreConfig{
			DSN:    sc.Postgres.DSN,
			Schema: sc.Postgres.Schema,
			Table:  sc.Postgres.Table,
		})
		if err != nil {
			return nil, err
		}
		if err = pgStore.EnsureSchema(initCtx); err != nil {
			_ = pgStore.Close()
			return nil, err
		}
		result.CredentialStore = pgStore
		result.close = closer("postgres", pgStore.Close)
		result.location = misc.CredentialLocation(config.StorePostgres, pgStore.TableName())
	case config.StoreObject:
		endpoint, useSSL, err := resolveObjectEndpoint(sc.Object.Endpoint, sc.Object.UseSSL)
		if err != nil {
			return nil, err
		}
		objStore, err := store.NewObjectStore(store.ObjectStoreConfig{
			Endpoint:  endpoint,
			Bucket:    sc.Object.Bucket,
			AccessKey: sc.Object.AccessKey,
			SecretKey: sc.Object.SecretKey,
			Region:    sc.Object.Region,
			Prefix:    sc.Object.Prefix,
			UseSSL:    useSSL,
			PathStyle: sc.Object.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		if err = objStore.EnsureBucket(initCtx); err != nil {
			return nil, err
		}
		result.CredentialStore = objStore
		result.location = misc.CredentialLocation(config.StoreObject, strings.TrimRight(sc.Object.Bucket+"/"+strings.Trim(sc.Object.Prefix, "/"), "/"))
	default:
		return nil, fmt.Errorf("unsupported credential store %q", sc.Type)
	}

	if strings.TrimSpace(sc.EncryptionKey) != "" {
		sealed, err := sdkAuth.NewSealedStore(result.CredentialStore, sc.EncryptionKey)
		if err != nil {
			result.close()
			return nil, err
		}
		result.CredentialStore = sealed
		log.Debug("credential values are sealed at rest")
	}

	sdkAuth.RegisterCredentialStore(result.CredentialStore)
	log.Infof("credential store: %s", result.location)
	return result, nil
}

// resolveObjectEndpoint accepts either host[:port] or a full http(s) URL; the URL
// scheme overrides useSSL.
func resolveObjectEndpoint(raw string, useSSL bool) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), useSSL, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse object store endpoint %q: %w", raw, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http":
		useSSL = false
	case "https":
		useSSL = true
	default:
		return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("object store endpoint %q is missing host information", raw)
	}
	return parsed.Host, useSSL, nil
}

// storePath resolves a configured store path. Without one the file lives under
// WRITABLE_PATH, or ~/.nowplaying.
func storePath(configured, name string) (string, error) {
	if strings.TrimSpace(configured) != "" {
		return util.ResolvePath(configured)
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, name), nil
	}
	return util.ResolvePath(filepath.Join("~", ".nowplaying", name))
}

func storeName(kind string) string {
	if kind == "" {
		return config.StoreMemory
	}
	return kind
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Warnf("close %s credential store: %v", name, err)
		}
	}
}
