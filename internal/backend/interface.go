// Package backend opens the storage.Store selected by configuration.
package backend

import (
	"context"

	"financeflow/internal/storage"
)

// BackendType names a storage implementation.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds what is needed to open any backend.
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string
}

// Result is an opened store. Cleanup releases it and is never nil.
type Result struct {
	Store   storage.Store
	Cleanup func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}
