package tier

import (
	"testing"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/stretchr/testify/assert"
)

const day = int64(24 * 3600 * 1000)

func TestClassifyCriticalEmotionalAlwaysCore(t *testing.T) {
	got := Classify(store.ImpactCritical, store.KindEmotional, 0, 0, 100*day)
	assert.Equal(t, store.TierCore, got)
}

func TestClassifyRecentlyAccessedIsActive(t *testing.T) {
	now := int64(100 * day)
	got := Classify(store.ImpactLow, store.KindLearnings, now-3*day, now-60*day, now)
	assert.Equal(t, store.TierActive, got)
}

func TestClassifyRecentlyCreatedIsContextual(t *testing.T) {
	now := int64(100 * day)
	got := Classify(store.ImpactLow, store.KindLearnings, now-60*day, now-10*day, now)
	assert.Equal(t, store.TierContextual, got)
}

func TestClassifyHighImpactIsContextualEvenWhenOld(t *testing.T) {
	now := int64(100 * day)
	got := Classify(store.ImpactHigh, store.KindLearnings, now-60*day, now-60*day, now)
	assert.Equal(t, store.TierContextual, got)
}

func TestClassifyOldLowImpactIsDeep(t *testing.T) {
	now := int64(100 * day)
	got := Classify(store.ImpactLow, store.KindLearnings, now-60*day, now-60*day, now)
	assert.Equal(t, store.TierDeep, got)
}
