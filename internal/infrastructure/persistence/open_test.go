package persistence

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/config"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/pkg/logger"
)

var testTime = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: &bytes.Buffer{}})
}

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory}}
	store, err := Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Repo.Ping(context.Background()))
	assert.Equal(t, config.StorageMemory, store.Driver)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageSQLite},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "progression.db")},
	}
	store, err := Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	p, err := progression.NewProfile("u1", testTime)
	require.NoError(t, err)
	require.NoError(t, store.Repo.Save(ctx, p))

	got, err := store.Repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "mongo"}}
	_, err := Open(context.Background(), cfg, quietLogger())
	assert.ErrorContains(t, err, "mongo")
}
