package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0355290812/petapp-cart/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisStore instance
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{
			ProductID:     "p1",
			Name:          "Salmon Treats",
			UnitPrice:     decimal.NewFromInt(90),
			OriginalPrice: decimal.NewFromInt(120),
			Image:         "p1.jpg",
			Quantity:      2,
			Stock:         7,
			OnSale:        true,
		},
		{
			ProductID: "p2",
			Name:      "Chew Toy",
			UnitPrice: decimal.NewFromInt(30),
			Quantity:  1,
			Stock:     10,
		},
	}
}

func TestLoadCart_Success(t *testing.T) {
	sut, mr := setupTestRedis(t)
	ctx := context.Background()

	data, err := json.Marshal(sampleLines())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cartKey, string(data)))

	lines, err := sut.LoadCart(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, "p2", lines[1].ProductID, "insertion order must survive a round trip")
}

func TestLoadCart_NotFound(t *testing.T) {
	sut, _ := setupTestRedis(t)

	lines, err := sut.LoadCart(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, lines)
}

func TestLoadCart_InvalidJSON(t *testing.T) {
	sut, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cartKey, `[{"product_id":`))

	_, err := sut.LoadCart(context.Background())
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSaveCart_RoundTrip(t *testing.T) {
	sut, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, sut.SaveCart(ctx, sampleLines()))

	lines, err := sut.LoadCart(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	// durable storage, not a cache: the snapshot must not expire
	ttl := mr.TTL(cartKey)
	assert.Zero(t, ttl)
}

func TestSaveCart_NilBecomesEmpty(t *testing.T) {
	sut, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, sut.SaveCart(ctx, nil))

	lines, err := sut.LoadCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestServerInit_Lifecycle(t *testing.T) {
	sut, _ := setupTestRedis(t)
	ctx := context.Background()

	set, err := sut.ServerInit(ctx)
	require.NoError(t, err)
	assert.False(t, set, "flag starts absent")

	require.NoError(t, sut.SetServerInit(ctx))
	set, err = sut.ServerInit(ctx)
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, sut.ClearServerInit(ctx))
	set, err = sut.ServerInit(ctx)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestServerInit_ClearAbsentFlag(t *testing.T) {
	sut, _ := setupTestRedis(t)
	require.NoError(t, sut.ClearServerInit(context.Background()))
}

func TestRedis_Down(t *testing.T) {
	sut, mr := setupTestRedis(t)
	mr.Close()

	_, err := sut.LoadCart(context.Background())
	require.ErrorContains(t, err, "redis get failed")

	err = sut.SaveCart(context.Background(), sampleLines())
	require.ErrorContains(t, err, "redis set failed")
}
