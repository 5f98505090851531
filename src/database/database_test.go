package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_CreatesSchema(t *testing.T) {
	db := NewTestDB(t)

	for _, table := range []string{"portfolios", "transactions", "portfolio_settings", "uploads_history", "daily_prices"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	db := NewTestDB(t)
	assert.NoError(t, RunMigrations(db))
}

func TestRunMigrations_NilDB(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
