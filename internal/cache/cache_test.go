package cache

import (
	"testing"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(cnr, next string) *database.CaseRecord {
	return &database.CaseRecord{ID: 7, CNR: cnr, NextHearingDate: next}
}

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(10, time.Minute)

	_, ok := c.Get("DLCT010000012024")
	assert.False(t, ok)

	c.Set("DLCT010000012024", record("DLCT010000012024", "2024-01-16"))
	got, ok := c.Get(" dlct010000012024 ")
	require.True(t, ok)
	assert.Equal(t, "2024-01-16", got.NextHearingDate)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(10, time.Minute)
	rec := record("DLCT010000012024", "2024-01-16")
	c.Set(rec.CNR, rec)
	rec.NextHearingDate = "changed"

	got, ok := c.Get(rec.CNR)
	require.True(t, ok)
	got.NextHearingDate = "also changed"

	again, _ := c.Get(rec.CNR)
	assert.Equal(t, "2024-01-16", again.NextHearingDate)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(10, time.Minute)
	rec := record("DLCT010000012024", "2024-01-16")
	c.Set(rec.CNR, rec)

	c.Invalidate(rec)
	_, ok := c.Get(rec.CNR)
	assert.False(t, ok)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Set("DLCT010000012024", record("DLCT010000012024", ""))
	time.Sleep(2 * time.Millisecond)
	c.Set("DLCT010000022024", record("DLCT010000022024", ""))
	time.Sleep(2 * time.Millisecond)
	c.Set("DLCT010000032024", record("DLCT010000032024", ""))

	assert.Equal(t, 2, c.Stats().Size)
	_, ok := c.Get("DLCT010000012024")
	assert.False(t, ok)
	_, ok = c.Get("DLCT010000032024")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := NewCache(10, time.Minute)
	c.Set("DLCT010000012024", record("DLCT010000012024", ""))
	c.Get("DLCT010000012024")

	c.Clear()
	assert.Equal(t, CacheStats{}, c.Stats())
}
