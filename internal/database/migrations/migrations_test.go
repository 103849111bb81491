package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversStockColumns(t *testing.T) {
	body, err := fs.ReadFile(schemaFS, "sql/000001_init_schema.up.sql")
	require.NoError(t, err)

	for _, col := range []string{"stok_tersisa", "stok_pending", "max_pembelian_per_orang", "khusus_mahasiswa", "code"} {
		assert.Contains(t, string(body), col)
	}
}
