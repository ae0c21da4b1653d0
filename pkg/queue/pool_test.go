package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(" " + string(tier) + " ")
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}

	got, err := ParseTier("LOWER2")
	require.NoError(t, err)
	assert.Equal(t, TierLower2, got)

	_, err = ParseTier("lower9")
	assert.True(t, errors.Is(err, utils.ErrUnknownTier))
}

func TestPool_GetEveryTier(t *testing.T) {
	p := NewPool(nil, testLogger())
	for _, tier := range Tiers {
		c, err := p.Get(tier)
		require.NoError(t, err)
		assert.Equal(t, tier, c.Tier())
		assert.True(t, c.Reentrant().Reentrant())
		assert.False(t, c.NonReentrant().Reentrant())
	}

	_, err := p.Get(Tier("nope"))
	assert.True(t, errors.Is(err, utils.ErrUnknownTier))
	assert.Panics(t, func() { p.MustGet(Tier("nope")) })

	assert.Same(t, p.MustGet(TierHigher3), p.Higher3())
	assert.Same(t, p.MustGet(TierLower2), p.Lower2())
}

func TestPool_NextDrainsInTierOrder(t *testing.T) {
	p := NewPool(nil, testLogger())

	p.Lower3().NonReentrant().Add(&models.WorkItem{URL: "review"})
	p.Default().Reentrant().Add(&models.WorkItem{URL: "dp"})
	p.Higher3().Reentrant().Add(&models.WorkItem{URL: "listing-pg2"})
	p.Lower2().NonReentrant().Add(&models.WorkItem{URL: "product-reviews"})
	assert.Equal(t, 4, p.Len())

	var got []string
	for {
		d, ok := p.Next()
		if !ok {
			break
		}
		got = append(got, d.Item.URL)
		require.NoError(t, p.Complete(d, models.PageStatusSuccess, ""))
	}
	assert.Equal(t, []string{"listing-pg2", "dp", "product-reviews", "review"}, got)
	assert.Equal(t, 0, p.Len())
}

func TestPool_CompleteReleasesNonReentrant(t *testing.T) {
	p := NewPool(nil, testLogger())
	q := p.Lower2().NonReentrant()

	require.True(t, q.Add(&models.WorkItem{URL: "u"}))
	d, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, TierLower2, d.Tier)
	assert.False(t, d.Reentrant)

	assert.False(t, q.Add(&models.WorkItem{URL: "u"}))
	require.NoError(t, p.Complete(d, models.PageStatusSuccess, ""))
	assert.True(t, q.Add(&models.WorkItem{URL: "u"}))
}

func TestPool_Stats(t *testing.T) {
	p := NewPool(nil, testLogger())
	p.Higher3().Reentrant().Add(&models.WorkItem{URL: "a"})
	p.Higher3().Reentrant().Add(&models.WorkItem{URL: "a"})
	p.Lower2().NonReentrant().Add(&models.WorkItem{URL: "b"})
	p.Lower2().NonReentrant().Add(&models.WorkItem{URL: "b"})

	stats := p.Stats()
	require.Len(t, stats, len(Tiers))
	assert.Equal(t, TierHigher3, stats[0].Tier)
	assert.Equal(t, 2, stats[0].Reentrant.Queued)

	var lower2 TierStats
	for _, s := range stats {
		if s.Tier == TierLower2 {
			lower2 = s
		}
	}
	assert.Equal(t, 1, lower2.NonReentrant.Queued)
	assert.Equal(t, int64(1), lower2.NonReentrant.Rejected)
}

func TestPool_CloseUnblocks(t *testing.T) {
	p := NewPool(nil, testLogger())
	done := make(chan bool)
	go func() {
		_, ok := p.Normal().Reentrant().Pop()
		done <- ok
	}()
	p.Close()
	assert.False(t, <-done)
}

func TestPool_RestoreUsesRecordedTier(t *testing.T) {
	p := NewPool(nil, testLogger())

	assert.True(t, p.Restore(&models.WorkItem{URL: "https://www.amazon.com/product-reviews/B000000001", Tier: "lower3"}))
	assert.True(t, p.Restore(&models.WorkItem{URL: "https://www.amazon.com/dp/B000000002", Tier: "bogus"}))
	assert.False(t, p.Restore(&models.WorkItem{URL: "https://www.amazon.com/dp/B000000002", Tier: "bogus"}), "already a member")

	assert.Equal(t, 1, p.Lower3().NonReentrant().Len())
	assert.Equal(t, 1, p.Default().NonReentrant().Len())
	assert.True(t, p.Default().NonReentrant().Contains("https://www.amazon.com/dp/B000000002"))
}
