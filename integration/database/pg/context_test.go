package pg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bautismal/atmosphere/integration/database/pg"
)

func TestTxContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, ok := pg.TxFromContext(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, pg.WithTx(ctx, nil))
}
