package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/examroom/internal/config"
	"github.com/xelth-com/examroom/internal/models"
)

func TestConnect_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate(models.All()...))
	assert.NoError(t, db.Ping(context.Background()))

	row := models.GraphField{NodePath: "room/approvals/a", Field: "name", State: 1}
	require.NoError(t, db.Create(&row).Error)

	var count int64
	require.NoError(t, db.Model(&models.GraphField{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}
