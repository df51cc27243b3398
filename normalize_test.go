package mongocheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		for path, def := range baseMetrics {
			_, first := resolveMetric(path, def, "")
			_, second := resolveMetric(path, def, "")
			assert.Equal(t, first, second)
		}
	})
	t.Run("CaseSensitiveLockModes", func(t *testing.T) {
		assert.Equal(t, "mongodb.locks.collection.acquirecount.shared",
			normalizeMetricName("locks.Collection.acquireCount.R", Gauge, ""))
		assert.Equal(t, "mongodb.locks.collection.acquirecount.intent_shared",
			normalizeMetricName("locks.Collection.acquireCount.r", Gauge, ""))
		assert.Equal(t, "mongodb.locks.collection.acquirecount.exclusive",
			normalizeMetricName("locks.Collection.acquireCount.W", Gauge, ""))
		assert.Equal(t, "mongodb.locks.collection.acquirecount.intent_exclusive",
			normalizeMetricName("locks.Collection.acquireCount.w", Gauge, ""))
	})
	t.Run("MixedCaseInteriorSegmentsUnaffected", func(t *testing.T) {
		assert.Equal(t, "mongodb.locks.mmapv1journal.acquirecount.intent_shared",
			normalizeMetricName("locks.MMAPV1Journal.acquireCount.r", Gauge, ""))
		assert.Equal(t, "mongodb.opcountersrepl.query",
			normalizeMetricName("opcountersRepl.query", Gauge, ""))
	})
	t.Run("RateSuffix", func(t *testing.T) {
		assert.Equal(t, "mongodb.asserts.msgps", normalizeMetricName("asserts.msg", Rate, ""))
		assert.Equal(t, "mongodb.asserts.msg", normalizeMetricName("asserts.msg", Gauge, ""))

		for path, def := range locksMetrics {
			_, name := resolveMetric(path, def, "")
			assert.True(t, name[len(name)-2:] == "ps", "rate metric %s must end in ps", name)
		}
	})
	t.Run("PrefixSegment", func(t *testing.T) {
		assert.Equal(t, "mongodb.usage.commands.countps",
			normalizeMetricName("commands.count", Rate, "usage"))
		assert.Equal(t, "mongodb.usage.commands.time",
			normalizeMetricName("commands.time", Gauge, "usage"))
	})
	t.Run("ScrubsSpacesAndDashes", func(t *testing.T) {
		assert.Equal(t, "mongodb.wiredtiger.cache.in_memory_page_splits",
			normalizeMetricName("wiredTiger.cache.in-memory page splits", Gauge, ""))
	})
	t.Run("AliasPreferred", func(t *testing.T) {
		def := wiredtigerMetrics["wiredTiger.cache.bytes currently in the cache"]
		_, name := resolveMetric("wiredTiger.cache.bytes currently in the cache", def, "")
		assert.Equal(t, "mongodb.wiredtiger.cache.bytes_currently_in_cache", name)
	})
}

func TestScrubName(t *testing.T) {
	assert.Equal(t, "a_b", scrubName("a b"))
	assert.Equal(t, "a_b", scrubName("a- b"))
	assert.Equal(t, "already_clean.name_1", scrubName("already_clean.name_1"))
}
