package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phobologic/crux/internal/store"
	"github.com/phobologic/crux/internal/store/storetest"
)

// Tests run against a disposable database named by CRUX_TEST_POSTGRES_DSN.
// Every subtest truncates the tables first.
func TestBackend(t *testing.T) {
	dsn := os.Getenv("CRUX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRUX_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Backend {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		require.NoError(t, err)
		_, err = s.db.ExecContext(ctx, `TRUNCATE summary, call, source, def`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenBadDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1")
	require.Error(t, err)
}
