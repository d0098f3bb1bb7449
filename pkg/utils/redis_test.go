package utils

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("pw")
	ctx := context.Background()

	_, err := OpenRedis(ctx, RedisConfig{})
	assert.Error(t, err)

	rdb, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr(), Password: "pw"})
	require.NoError(t, err)
	defer rdb.Close()
	assert.Equal(t, 20, rdb.Options().PoolSize)
}
