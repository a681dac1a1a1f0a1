package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM users WHERE id = ? AND username = ?`
	assert.Equal(t, q, dialectSQLite.rebind(q))
	assert.Equal(t, `SELECT id FROM users WHERE id = $1 AND username = $2`, dialectPostgres.rebind(q))
	assert.Equal(t, "SELECT 1", dialectPostgres.rebind("SELECT 1"))
}

func TestParseDialect(t *testing.T) {
	for input, want := range map[string]dialect{
		"":           dialectSQLite,
		"sqlite":     dialectSQLite,
		"SQLite3":    dialectSQLite,
		"postgres":   dialectPostgres,
		"postgresql": dialectPostgres,
		" pg ":       dialectPostgres,
	} {
		got, err := parseDialect(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := parseDialect("oracle")
	assert.Error(t, err)
}

func TestSchemasCoverSameTables(t *testing.T) {
	assert.Len(t, dialectPostgres.schema(), len(dialectSQLite.schema()))
}
