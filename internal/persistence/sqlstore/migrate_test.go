package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/log"
)

func TestMigrate_LogsSchemaVersionWithoutShadowingBuildVersion(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "info", Output: &buf, Service: "vodpipe", Version: "1.2.3"})
	t.Cleanup(func() { log.Configure(log.Config{Level: "info"}) })

	db, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "videos.sqlite")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = Migrate(context.Background(), db)
	require.NoError(t, err)

	var applied []float64
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] != "schema migration applied" {
			continue
		}
		assert.Equal(t, "1.2.3", entry[log.FieldVersion])
		applied = append(applied, entry[log.FieldSchema].(float64))
	}
	require.Len(t, applied, len(migrations))
	assert.Equal(t, float64(len(migrations)), applied[len(applied)-1])
}
