package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthy.sqlite")
	cfg := DefaultConfig(path)
	cfg.MaxOpenConns = 1

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = Migrate(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for _, mode := range []string{"quick", "full"} {
		issues, err := VerifyIntegrity(path, mode)
		require.NoError(t, err)
		require.Nil(t, issues, mode)
	}
}
