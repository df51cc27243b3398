package mongocheck

import "strings"

// Definition describes how a single serverStatus field is submitted:
// the kind it is reported as and, when the raw field name is unusable
// as a metric name, an alias to report it under.
type Definition struct {
	Kind  Kind
	Alias string
}

func gauge() Definition          { return Definition{Kind: Gauge} }
func rate() Definition           { return Definition{Kind: Rate} }
func aliased(k Kind, alias string) Definition { return Definition{Kind: k, Alias: alias} }

// Core metrics collected by default.
var baseMetrics = map[string]Definition{
	"asserts.msg":                        rate(),
	"asserts.regular":                    rate(),
	"asserts.rollovers":                  rate(),
	"asserts.user":                       rate(),
	"asserts.warning":                    rate(),
	"backgroundFlushing.average_ms":      gauge(),
	"backgroundFlushing.flushes":         rate(),
	"backgroundFlushing.last_ms":         gauge(),
	"backgroundFlushing.total_ms":        gauge(),
	"connections.available":              gauge(),
	"connections.current":                gauge(),
	"connections.totalCreated":           gauge(),
	"cursors.timedOut":                   gauge(), // < 2.6
	"cursors.totalOpen":                  gauge(), // < 2.6
	"extra_info.heap_usage_bytes":        rate(),
	"extra_info.page_faults":             rate(),
	"fsyncLocked":                        gauge(),
	"globalLock.activeClients.readers":   gauge(),
	"globalLock.activeClients.total":     gauge(),
	"globalLock.activeClients.writers":   gauge(),
	"globalLock.currentQueue.readers":    gauge(),
	"globalLock.currentQueue.total":      gauge(),
	"globalLock.currentQueue.writers":    gauge(),
	"globalLock.lockTime":                gauge(),
	"globalLock.ratio":                   gauge(), // < 2.2
	"globalLock.totalTime":               gauge(),
	"indexCounters.accesses":             rate(),
	"indexCounters.btree.accesses":       rate(), // < 2.4
	"indexCounters.btree.hits":           rate(), // < 2.4
	"indexCounters.btree.misses":         rate(), // < 2.4
	"indexCounters.btree.missRatio":      gauge(), // < 2.4
	"indexCounters.hits":                 rate(),
	"indexCounters.misses":               rate(),
	"indexCounters.missRatio":            gauge(),
	"indexCounters.resets":               rate(),
	"mem.bits":                           gauge(),
	"mem.mapped":                         gauge(),
	"mem.mappedWithJournal":              gauge(),
	"mem.resident":                       gauge(),
	"mem.virtual":                        gauge(),
	"metrics.cursor.open.noTimeout":      gauge(), // >= 2.6
	"metrics.cursor.open.pinned":         gauge(), // >= 2.6
	"metrics.cursor.open.total":          gauge(), // >= 2.6
	"metrics.cursor.timedOut":            rate(), // >= 2.6
	"metrics.document.deleted":           rate(),
	"metrics.document.inserted":          rate(),
	"metrics.document.returned":          rate(),
	"metrics.document.updated":           rate(),
	"metrics.getLastError.wtime.num":     rate(),
	"metrics.getLastError.wtime.totalMillis": rate(),
	"metrics.getLastError.wtimeouts":     rate(),
	"metrics.operation.fastmod":          rate(),
	"metrics.operation.idhack":           rate(),
	"metrics.operation.scanAndOrder":     rate(),
	"metrics.operation.writeConflicts":   rate(),
	"metrics.queryExecutor.scanned":      rate(),
	"metrics.record.moves":               rate(),
	"metrics.repl.apply.batches.num":     rate(),
	"metrics.repl.apply.batches.totalMillis": rate(),
	"metrics.repl.apply.ops":             rate(),
	"metrics.repl.buffer.count":          gauge(),
	"metrics.repl.buffer.maxSizeBytes":   gauge(),
	"metrics.repl.buffer.sizeBytes":      gauge(),
	"metrics.repl.network.bytes":         rate(),
	"metrics.repl.network.getmores.num":  rate(),
	"metrics.repl.network.getmores.totalMillis": rate(),
	"metrics.repl.network.ops":           rate(),
	"metrics.repl.network.readersCreated": rate(),
	"metrics.repl.oplog.insert.num":      rate(),
	"metrics.repl.oplog.insert.totalMillis": rate(),
	"metrics.repl.oplog.insertBytes":     rate(),
	"metrics.repl.preload.docs.num":      rate(),
	"metrics.repl.preload.docs.totalMillis": rate(),
	"metrics.repl.preload.indexes.num":   rate(),
	"metrics.repl.preload.indexes.totalMillis": rate(),
	"metrics.repl.storage.freelist.search.bucketExhausted": rate(),
	"metrics.repl.storage.freelist.search.requests":        rate(),
	"metrics.repl.storage.freelist.search.scanned":         rate(),
	"metrics.ttl.deletedDocuments":       rate(),
	"metrics.ttl.passes":                 rate(),
	"network.bytesIn":                    rate(),
	"network.bytesOut":                   rate(),
	"network.numRequests":                rate(),
	"opcounters.command":                 rate(),
	"opcounters.delete":                  rate(),
	"opcounters.getmore":                 rate(),
	"opcounters.insert":                  rate(),
	"opcounters.query":                   rate(),
	"opcounters.update":                  rate(),
	"opcountersRepl.command":             rate(),
	"opcountersRepl.delete":              rate(),
	"opcountersRepl.getmore":             rate(),
	"opcountersRepl.insert":              rate(),
	"opcountersRepl.query":               rate(),
	"opcountersRepl.update":              rate(),
	"oplog.logSizeMB":                    gauge(),
	"oplog.usedSizeMB":                   gauge(),
	"oplog.timeDiff":                     gauge(),
	"replSet.health":                     gauge(),
	"replSet.replicationLag":             gauge(),
	"replSet.state":                      gauge(),
	"replSet.votes":                      gauge(),
	"replSet.voteFraction":               gauge(),
	"stats.avgObjSize":                   gauge(),
	"stats.collections":                  gauge(),
	"stats.dataSize":                     gauge(),
	"stats.fileSize":                     gauge(),
	"stats.indexes":                      gauge(),
	"stats.indexSize":                    gauge(),
	"stats.nsSizeMB":                     gauge(),
	"stats.numExtents":                   gauge(),
	"stats.objects":                      gauge(),
	"stats.storageSize":                  gauge(),
	"uptime":                             gauge(),
}

// Journaling-related operations and performance report.
//
// https://docs.mongodb.org/manual/reference/command/serverStatus/#serverStatus.dur
var durabilityMetrics = map[string]Definition{
	"dur.commits":                  gauge(),
	"dur.commitsInWriteLock":       gauge(),
	"dur.compression":              gauge(),
	"dur.earlyCommits":             gauge(),
	"dur.journaledMB":              gauge(),
	"dur.timeMs.dt":                gauge(),
	"dur.timeMs.prepLogBuffer":     gauge(),
	"dur.timeMs.remapPrivateView":  gauge(),
	"dur.timeMs.writeToDataFiles":  gauge(),
	"dur.timeMs.writeToJournal":    gauge(),
	"dur.writeToDataFilesMB":       gauge(),
	// Requires server > 3.0.0
	"dur.timeMs.commits":            gauge(),
	"dur.timeMs.commitsInWriteLock": gauge(),
}

// ServerStatus use of database commands report. Requires server > 3.0.0.
//
// https://docs.mongodb.org/manual/reference/command/serverStatus/#serverStatus.metrics.commands
var commandsMetrics = map[string]Definition{
	"metrics.commands.count.failed":         rate(),
	"metrics.commands.count.total":          gauge(),
	"metrics.commands.createIndexes.failed": rate(),
	"metrics.commands.createIndexes.total":  gauge(),
	"metrics.commands.delete.failed":        rate(),
	"metrics.commands.delete.total":         gauge(),
	"metrics.commands.eval.failed":          rate(),
	"metrics.commands.eval.total":           gauge(),
	"metrics.commands.findAndModify.failed": rate(),
	"metrics.commands.findAndModify.total":  gauge(),
	"metrics.commands.insert.failed":        rate(),
	"metrics.commands.insert.total":         gauge(),
	"metrics.commands.update.failed":        rate(),
	"metrics.commands.update.total":         gauge(),
}

// ServerStatus locks report. Requires server > 3.0.0.
//
// https://docs.mongodb.org/manual/reference/command/serverStatus/#server-status-locks
var locksMetrics = map[string]Definition{
	"locks.Collection.acquireCount.R":         rate(),
	"locks.Collection.acquireCount.r":         rate(),
	"locks.Collection.acquireCount.W":         rate(),
	"locks.Collection.acquireCount.w":         rate(),
	"locks.Collection.acquireWaitCount.R":     rate(),
	"locks.Collection.acquireWaitCount.W":     rate(),
	"locks.Collection.timeAcquiringMicros.R":  rate(),
	"locks.Collection.timeAcquiringMicros.W":  rate(),
	"locks.Database.acquireCount.r":           rate(),
	"locks.Database.acquireCount.R":           rate(),
	"locks.Database.acquireCount.w":           rate(),
	"locks.Database.acquireCount.W":           rate(),
	"locks.Database.acquireWaitCount.r":       rate(),
	"locks.Database.acquireWaitCount.R":       rate(),
	"locks.Database.acquireWaitCount.w":       rate(),
	"locks.Database.acquireWaitCount.W":       rate(),
	"locks.Database.timeAcquiringMicros.r":    rate(),
	"locks.Database.timeAcquiringMicros.R":    rate(),
	"locks.Database.timeAcquiringMicros.w":    rate(),
	"locks.Database.timeAcquiringMicros.W":    rate(),
	"locks.Global.acquireCount.r":             rate(),
	"locks.Global.acquireCount.R":             rate(),
	"locks.Global.acquireCount.w":             rate(),
	"locks.Global.acquireCount.W":             rate(),
	"locks.Global.acquireWaitCount.r":         rate(),
	"locks.Global.acquireWaitCount.R":         rate(),
	"locks.Global.acquireWaitCount.w":         rate(),
	"locks.Global.acquireWaitCount.W":         rate(),
	"locks.Global.timeAcquiringMicros.r":      rate(),
	"locks.Global.timeAcquiringMicros.R":      rate(),
	"locks.Global.timeAcquiringMicros.w":      rate(),
	"locks.Global.timeAcquiringMicros.W":      rate(),
	"locks.Metadata.acquireCount.R":           rate(),
	"locks.Metadata.acquireCount.W":           rate(),
	"locks.MMAPV1Journal.acquireCount.r":      rate(),
	"locks.MMAPV1Journal.acquireCount.w":      rate(),
	"locks.MMAPV1Journal.acquireWaitCount.r":  rate(),
	"locks.MMAPV1Journal.acquireWaitCount.w":  rate(),
	"locks.MMAPV1Journal.timeAcquiringMicros.r": rate(),
	"locks.MMAPV1Journal.timeAcquiringMicros.w": rate(),
	"locks.oplog.acquireCount.R":              rate(),
	"locks.oplog.acquireCount.w":              rate(),
	"locks.oplog.acquireWaitCount.R":          rate(),
	"locks.oplog.acquireWaitCount.w":          rate(),
	"locks.oplog.timeAcquiringMicros.R":       rate(),
	"locks.oplog.timeAcquiringMicros.w":       rate(),
}

// TCMalloc memory allocator report.
var tcmallocMetrics = map[string]Definition{
	"tcmalloc.generic.current_allocated_bytes":          gauge(),
	"tcmalloc.generic.heap_size":                        gauge(),
	"tcmalloc.tcmalloc.aggressive_memory_decommit":      gauge(),
	"tcmalloc.tcmalloc.central_cache_free_bytes":        gauge(),
	"tcmalloc.tcmalloc.current_total_thread_cache_bytes": gauge(),
	"tcmalloc.tcmalloc.max_total_thread_cache_bytes":    gauge(),
	"tcmalloc.tcmalloc.pageheap_free_bytes":             gauge(),
	"tcmalloc.tcmalloc.pageheap_unmapped_bytes":         gauge(),
	"tcmalloc.tcmalloc.thread_cache_free_bytes":         gauge(),
	"tcmalloc.tcmalloc.transfer_cache_free_bytes":       gauge(),
	"tcmalloc.tcmalloc.spinlock_total_delay_ns":         gauge(),
}

// WiredTiger storage engine. Several field names contain spaces and
// dashes, so they carry explicit aliases.
var wiredtigerMetrics = map[string]Definition{
	"wiredTiger.cache.bytes currently in the cache": aliased(Gauge, "wiredTiger.cache.bytes_currently_in_cache"),
	"wiredTiger.cache.failed eviction of pages that exceeded the in-memory maximum": aliased(Rate, "wiredTiger.cache.failed_eviction_of_pages_exceeding_the_in-memory_maximum"),
	"wiredTiger.cache.in-memory page splits":        gauge(),
	"wiredTiger.cache.maximum bytes configured":     gauge(),
	"wiredTiger.cache.maximum page size at eviction": gauge(),
	"wiredTiger.cache.modified pages evicted":       gauge(),
	"wiredTiger.cache.pages read into cache":        gauge(),
	"wiredTiger.cache.pages written from cache":     gauge(),
	"wiredTiger.cache.pages currently held in the cache": aliased(Gauge, "wiredTiger.cache.pages_currently_held_in_cache"),
	"wiredTiger.cache.pages evicted because they exceeded the in-memory maximum": aliased(Rate, "wiredTiger.cache.pages_evicted_exceeding_the_in-memory_maximum"),
	"wiredTiger.cache.pages evicted by application threads": rate(),
	"wiredTiger.cache.tracked dirty bytes in the cache":     aliased(Gauge, "wiredTiger.cache.tracked_dirty_bytes_in_cache"),
	"wiredTiger.cache.unmodified pages evicted":             gauge(),
	"wiredTiger.concurrentTransactions.read.available":      gauge(),
	"wiredTiger.concurrentTransactions.read.out":            gauge(),
	"wiredTiger.concurrentTransactions.read.totalTickets":   gauge(),
	"wiredTiger.concurrentTransactions.write.available":     gauge(),
	"wiredTiger.concurrentTransactions.write.out":           gauge(),
	"wiredTiger.concurrentTransactions.write.totalTickets":  gauge(),
}

// Usage statistics for each collection, from the top command.
//
// https://docs.mongodb.org/v3.0/reference/command/top/
var topMetrics = map[string]Definition{
	"commands.count":  rate(),
	"commands.time":   gauge(),
	"getmore.count":   rate(),
	"getmore.time":    gauge(),
	"insert.count":    rate(),
	"insert.time":     gauge(),
	"queries.count":   rate(),
	"queries.time":    gauge(),
	"readLock.count":  rate(),
	"readLock.time":   gauge(),
	"remove.count":    rate(),
	"remove.time":     gauge(),
	"total.count":     rate(),
	"total.time":      gauge(),
	"update.count":    rate(),
	"update.time":     gauge(),
	"writeLock.count": rate(),
	"writeLock.time":  gauge(),
}

// Per-collection statistics from collStats.
var collectionMetrics = map[string]Definition{
	"collection.size":        gauge(),
	"collection.avgObjSize":  gauge(),
	"collection.count":       gauge(),
	"collection.capped":      gauge(),
	"collection.max":         gauge(),
	"collection.maxSize":     gauge(),
	"collection.storageSize": gauge(),
	"collection.nindexes":    gauge(),
	"collection.indexSizes":  gauge(),
}

// defaultCategoryOrder fixes the merge order for the always-collected
// categories.
var defaultCategoryOrder = []string{"base", "durability", "locks", "wiredtiger"}

var defaultCategories = map[string]map[string]Definition{
	"base":       baseMetrics,
	"durability": durabilityMetrics,
	"locks":      locksMetrics,
	"wiredtiger": wiredtigerMetrics,
}

// additionalCategories are opt-in by name in Options.AdditionalMetrics.
var additionalCategories = map[string]map[string]Definition{
	"metrics.commands": commandsMetrics,
	"tcmalloc":         tcmallocMetrics,
	"top":              topMetrics,
	"collection":       collectionMetrics,
}

// collectionStatNames lists the collStats document fields monitored by
// the per-collection feature, derived from the collection category's
// field paths.
func collectionStatNames() []string {
	out := make([]string, 0, len(collectionMetrics))
	for path := range collectionMetrics {
		out = append(out, strings.SplitN(path, ".", 2)[1])
	}
	return out
}
