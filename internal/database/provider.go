package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Backend names a ProfileStore implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
)

// ParseBackend resolves a backend name; empty means file.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendFile, nil
	case BackendMemory, BackendFile, BackendPostgres:
		return b, nil
	default:
		return "", fmt.Errorf("unknown profile store %q (want memory, file or postgres)", s)
	}
}

// PostgresOpener returns a ProfileStore backed by an initialized pool.
type PostgresOpener func(ctx context.Context) (ProfileStore, io.Closer, error)

var postgresOpener PostgresOpener

// RegisterPostgresBackend registers the PostgreSQL store constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(open PostgresOpener) {
	postgresOpener = open
}

// IsPostgresInitialized returns whether the PostgreSQL backend has been registered.
func IsPostgresInitialized() bool {
	return postgresOpener != nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the store for backend. path is the snapshot file of the
// file backend and is ignored otherwise.
func Open(ctx context.Context, backend Backend, path string) (ProfileStore, io.Closer, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case BackendFile:
		fs, err := NewFileStore(path)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	case BackendPostgres:
		if postgresOpener == nil {
			return nil, nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
		}
		return postgresOpener(ctx)
	default:
		return nil, nil, fmt.Errorf("unknown profile store %q", backend)
	}
}
