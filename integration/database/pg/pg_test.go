package pg_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/integration/database/pg"
)

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := pg.Connect(context.Background(), pg.Config{})
		assert.ErrorIs(t, err, pg.ErrEmptyConnectionURL)
	})

	t.Run("bad url", func(t *testing.T) {
		t.Parallel()
		_, err := pg.Connect(context.Background(), pg.Config{ConnectionString: "postgres://%zz"})
		assert.ErrorIs(t, err, pg.ErrFailedToParseDBConfig)
	})
}

// testPool connects to PG_TEST_URL and migrates it. Tests using it are
// skipped without a database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL not set")
	}

	cfg := pg.DefaultConfig()
	cfg.ConnectionString = url
	cfg.RetryAttempts = 1

	ctx := context.Background()
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, nil))
	require.NoError(t, pg.Healthcheck(pool)(ctx))
	return pool
}

func channelName(t *testing.T) string {
	return "test-" + t.Name() + "-" + time.Now().Format("150405.000000000")
}

func TestCache(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	t.Run("retrieve after marker", func(t *testing.T) {
		c := pg.NewCache(pool)
		ch := channelName(t)

		one := broadcaster.NewTextMessage("one")
		two := broadcaster.NewTextMessage("two")
		require.NoError(t, c.Cache(ctx, ch, one))
		require.NoError(t, c.Cache(ctx, ch, two))
		require.NoError(t, c.Cache(ctx, ch, one))

		all, err := c.Retrieve(ctx, ch, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, one.ID, all[0].ID)

		after, err := c.Retrieve(ctx, ch, one.ID)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, "two", after[0].Text())

		unknown, err := c.Retrieve(ctx, ch, "nope")
		require.NoError(t, err)
		assert.Len(t, unknown, 2)
	})

	t.Run("replay limit keeps newest", func(t *testing.T) {
		c := pg.NewCache(pool, pg.WithMaxReplay(2))
		ch := channelName(t)
		for _, s := range []string{"a", "b", "c"} {
			require.NoError(t, c.Cache(ctx, ch, broadcaster.NewTextMessage(s)))
		}
		got, err := c.Retrieve(ctx, ch, "")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Text())
		assert.Equal(t, "c", got[1].Text())
	})

	t.Run("prune trims channels", func(t *testing.T) {
		c := pg.NewCache(pool, pg.WithKeepPerChannel(1), pg.WithRetention(0))
		ch := channelName(t)
		require.NoError(t, c.Cache(ctx, ch, broadcaster.NewTextMessage("old")))
		require.NoError(t, c.Cache(ctx, ch, broadcaster.NewTextMessage("new")))

		_, err := c.Prune(ctx)
		require.NoError(t, err)

		got, err := c.Retrieve(ctx, ch, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Text())
	})

	t.Run("joins a context transaction", func(t *testing.T) {
		c := pg.NewCache(pool)
		ch := channelName(t)

		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Cache(pg.WithTx(ctx, tx), ch, broadcaster.NewTextMessage("rolled back")))
		require.NoError(t, tx.Rollback(ctx))

		got, err := c.Retrieve(ctx, ch, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
