package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/domain/dataset"
)

func testDataset() dataset.Dataset {
	return dataset.Dataset{
		Columns: []dataset.ColumnDescriptor{{Name: "LedgerName"}, {Name: "ClosingBalance"}},
		Rows:    []dataset.Row{{"Acme", "5000"}},
	}
}

func testKey(t *testing.T) Key {
	t.Helper()
	key, ok := NewKey("LOC1", "guid-1", "")
	require.True(t, ok)
	return key
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time         { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T) (*TieredCache, *MemoryStore, *MemoryStore, *fakeClock) {
	t.Helper()
	l1 := NewMemoryStore()
	l2 := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)}
	return NewTieredCache(l1, l2, WithClock(clock.Now)), l1, l2, clock
}

func TestNewKey(t *testing.T) {
	tests := []struct {
		name                           string
		locationID, companyGUID, formula string
		ok                             bool
		want                           string
	}{
		{"full identity", "LOC1", "guid-1", "bycollector", true, "LOC1:guid-1:bycollector"},
		{"empty formula defaults", "LOC1", "guid-1", "", true, "LOC1:guid-1:default"},
		{"missing location", "", "guid-1", "f", false, ""},
		{"missing company", "LOC1", "", "f", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := NewKey(tt.locationID, tt.companyGUID, tt.formula)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, key.String())
			}
		})
	}
}

func TestTieredCache_PutGet(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	c.Put(ctx, key, testDataset())

	entry, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, testDataset(), entry.Dataset())
}

func TestTieredCache_TTLBoundary(t *testing.T) {
	c, l1, l2, clock := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	c.Put(ctx, key, testDataset())

	clock.Advance(14*time.Minute + 59*time.Second)
	_, ok := c.Get(ctx, key)
	assert.True(t, ok, "entry inside the TTL must be served")

	clock.Advance(2 * time.Second) // now at 15m01s
	_, ok = c.Get(ctx, key)
	assert.False(t, ok, "entry past the TTL must be a miss")
	assert.Equal(t, 0, l1.Len(), "expired entry must be evicted from l1")
	assert.Equal(t, 0, l2.Len(), "expired entry must be evicted from l2")
}

func TestTieredCache_L2HitBackfillsL1(t *testing.T) {
	c, l1, _, _ := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	c.Put(ctx, key, testDataset())
	require.NoError(t, l1.Remove(ctx, key.String()))

	_, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1, l1.Len(), "durable-tier hit must repopulate the in-process tier")
}

func TestTieredCache_CorruptDurableEntryIsAMiss(t *testing.T) {
	c, l1, l2, _ := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, key.String(), "{not json"))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, l2.Len(), "corrupt entry must be evicted")
	assert.Equal(t, 0, l1.Len())
}

func TestTieredCache_MisalignedEntryIsAMiss(t *testing.T) {
	c, _, l2, _ := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	// Valid JSON but rows no longer line up with columns.
	require.NoError(t, l2.Set(ctx, key.String(),
		`{"timestamp":"2024-05-15T12:00:00Z","columns":[{"name":"A"}],"rows":[["1","2"]]}`))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, l2.Len())
}

func TestTieredCache_PutReplacesEntirely(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	key := testKey(t)
	ctx := context.Background()

	c.Put(ctx, key, testDataset())

	replacement := dataset.Dataset{
		Columns: []dataset.ColumnDescriptor{{Name: "LedgerName"}},
		Rows:    []dataset.Row{{"Globex"}, {"Initech"}},
	}
	c.Put(ctx, key, replacement)

	entry, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, replacement, entry.Dataset())
}

func TestTieredCache_NilDurableTier(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewTieredCache(NewMemoryStore(), nil, WithClock(clock.Now))
	key := testKey(t)
	ctx := context.Background()

	c.Put(ctx, key, testDataset())
	_, ok := c.Get(ctx, key)
	assert.True(t, ok)

	c.Evict(ctx, key)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestTieredCache_DistinctKeysAreIndependent(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	ctx := context.Background()

	keyA, _ := NewKey("LOC1", "guid-1", "a")
	keyB, _ := NewKey("LOC1", "guid-1", "b")

	c.Put(ctx, keyA, testDataset())

	_, ok := c.Get(ctx, keyB)
	assert.False(t, ok)
	_, ok = c.Get(ctx, keyA)
	assert.True(t, ok)
}

func TestTieredCache_WithTTLOption(t *testing.T) {
	c := NewTieredCache(NewMemoryStore(), nil, WithTTL(time.Minute))
	assert.Equal(t, time.Minute, c.TTL())

	c = NewTieredCache(NewMemoryStore(), nil, WithTTL(0))
	assert.Equal(t, DefaultTTL, c.TTL(), "non-positive TTL falls back to default")
}
