package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/shared"
)

func TestMigrationsAreOrdered(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "0001_init.sql", entries[0].Name())
}

func TestEveryCoreScopeIsSeeded(t *testing.T) {
	data, err := fs.ReadFile(FS, "0002_seed_permissions.sql")
	require.NoError(t, err)
	seed := string(data)
	for _, scope := range shared.CoreScopes() {
		assert.True(t, strings.Contains(seed, "'"+scope+"'"), "permission %s not seeded", scope)
	}
}

func TestLeaveOverlapIsConstrained(t *testing.T) {
	data, err := fs.ReadFile(FS, "0003_leave_overlap.sql")
	require.NoError(t, err)
	ddl := string(data)
	assert.Contains(t, ddl, "EXCLUDE USING gist")
	assert.Contains(t, ddl, "status IN ('pending', 'approved')")
}
