package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysetRoundTrip(t *testing.T) {
	key := Keyset{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}

	decoded, err := DecodeKeyset(key.Encode())
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, key.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, key.ID, decoded.ID)
}

func TestDecodeKeysetEmptyIsFirstPage(t *testing.T) {
	decoded, err := DecodeKeyset("  ")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeKeysetRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm9kb3Q", "MTIzLm5vdC1hLXV1aWQ"} {
		_, err := DecodeKeyset(token)
		assert.Error(t, err, token)
	}
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Limit(0))
	assert.Equal(t, DefaultLimit, Limit(-4))
	assert.Equal(t, 7, Limit(7))
	assert.Equal(t, MaxLimit, Limit(MaxLimit+1))
}

func TestSplit(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(i int) Keyset { return Keyset{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: ids[i]} }

	page, next := Split([]int{0, 1, 2}, 2, key)
	assert.Equal(t, []int{0, 1}, page)
	decoded, err := DecodeKeyset(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], decoded.ID)

	page, next = Split([]int{0, 1}, 2, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
