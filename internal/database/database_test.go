package database

import (
	"path/filepath"
	"testing"

	"github.com/Anuj5504/cloudbox/internal/config"
	"github.com/Anuj5504/cloudbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "cloudbox.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.FileRecord{}))
	assert.True(t, db.Migrator().HasIndex(&models.FileRecord{}, "idx_files_owner_parent"))

	rec := models.FileRecord{Name: "a.png", Path: "/x/a.png", Type: "image/png", FileURL: "http://cdn/a.png", UserID: "u1"}
	require.NoError(t, db.Create(&rec).Error)
	assert.Len(t, rec.ID, 36)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}
