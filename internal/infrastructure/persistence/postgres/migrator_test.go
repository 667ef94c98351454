package postgres

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigrations_Embedded verifies the bundled migrations load in sequence
func TestMigrations_Embedded(t *testing.T) {
	m := NewMigrator(nil)
	require.NoError(t, m.Load(Migrations()))
	require.Len(t, m.migrations, 3)
	assert.Equal(t, "create bots", m.migrations[1].Name)
	assert.NotEqual(t, "No description", m.migrations[1].Description)
	assert.Len(t, m.migrations[1].Checksum, 64)

	names, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

// TestMigrator_RejectsGaps verifies a missing sequence number is an error
func TestMigrator_RejectsGaps(t *testing.T) {
	fsys := fstest.MapFS{
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"003_third.sql": {Data: []byte("SELECT 3;")},
	}
	err := NewMigrator(nil).Load(fsys)
	assert.Error(t, err)

	bad := fstest.MapFS{"first.sql": {Data: []byte("SELECT 1;")}}
	assert.Error(t, NewMigrator(nil).Load(bad))
}
