package mongocheck

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/evergreen-ci/birch"
	"github.com/evergreen-ci/birch/bsontype"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ServiceCheckName is the connectivity health signal reported on
	// every cycle.
	ServiceCheckName = "mongodb.can_connect"

	defaultTimeout = 30 * time.Second
	bytesPerMB     = 1 << 20
)

// Index statistics require this server version.
var indexStatsMinVersion = semver.MustParse("3.2.0")

// Seconds is a timeout in configuration files: a bare number is a
// count of seconds, and duration strings such as "1m30s" are also
// accepted.
type Seconds time.Duration

func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	var num float64
	if err := value.Decode(&num); err == nil {
		*s = Seconds(time.Duration(num * float64(time.Second)))
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return newConfigurationError(errors.Wrap(err, "problem decoding timeout"))
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return newConfigurationError(errors.Wrapf(err, "problem parsing timeout '%s'", raw))
	}
	*s = Seconds(d)
	return nil
}

// Duration converts the configured timeout to a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

// Options configures one monitored endpoint.
type Options struct {
	// URI is the full connection string. Required; it doubles as the
	// endpoint identity for plan caching and replica state tracking
	// after credential sanitization.
	URI string `yaml:"server"`
	// AdditionalMetrics names opt-in metric categories to merge into
	// the default collection plan.
	AdditionalMetrics []string `yaml:"additional_metrics"`
	// Collections lists collections to gather per-collection and
	// index statistics for.
	Collections []string `yaml:"collections"`
	// CollectionsIndexesStats enables the $indexStats feature for the
	// configured collections (server 3.2 or newer).
	CollectionsIndexesStats bool `yaml:"collections_indexes_stats"`
	// ReplicaCheck controls replica set reporting. Unset means
	// enabled.
	ReplicaCheck *bool `yaml:"replica_check"`
	// CustomQueries turn user-authored commands into metrics.
	CustomQueries []CustomQuery `yaml:"custom_queries"`
	// Tags are static tags applied to every submission.
	Tags []string `yaml:"tags"`
	// Timeout bounds every document fetch and command execution,
	// expressed in seconds in configuration files.
	Timeout Seconds `yaml:"timeout"`
}

// Validate checks the option settings and applies defaults.
func (opts *Options) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(opts.URI == "", "option 'server' is required")

	if opts.Timeout <= 0 {
		opts.Timeout = Seconds(defaultTimeout)
	}

	return newConfigurationError(catcher.Resolve())
}

func (opts *Options) replicaCheckEnabled() bool {
	return opts.ReplicaCheck == nil || *opts.ReplicaCheck
}

func (opts *Options) hasAdditionalMetric(name string) bool {
	for _, option := range opts.AdditionalMetrics {
		if option == name {
			return true
		}
	}
	return false
}

// Check runs collection cycles against one endpoint. State may be
// shared across checks; cycles against the same endpoint synchronize
// on its entry, cycles against different endpoints never contend.
type Check struct {
	opts          Options
	conn          Connector
	sink          Sink
	state         *State
	identity      string
	dbName        string
	localHostname string
}

// NewCheck validates the options and binds a check to its connector,
// submission sink, and shared state.
func NewCheck(opts Options, conn Connector, sink Sink, state *State) (*Check, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &Check{
		opts:          opts,
		conn:          conn,
		sink:          sink,
		state:         state,
		identity:      sanitizeURI(opts.URI),
		dbName:        databaseFromURI(opts.URI),
		localHostname: hostname,
	}, nil
}

// Run performs one collection cycle: resolve the plan, fetch the
// status documents, sweep the catalog, run the optional features and
// custom queries, and report connectivity. Failures local to one
// optional feature are logged and do not stop the rest of the cycle;
// connection failures and catalog type mismatches abort it.
func (c *Check) Run(ctx context.Context) error {
	plan := c.state.Plan(c.identity, c.opts.AdditionalMetrics)

	tags := dedupeTags(c.opts.Tags)

	host, port := firstNode(c.opts.URI)
	serviceCheckTags := append([]string{"db:" + c.dbName}, tags...)
	serviceCheckTags = append(serviceCheckTags, "host:"+host, "port:"+port)

	// The server tag goes on metrics only; the backend attaches it to
	// service checks itself.
	tags = append(tags, "server:"+c.identity)

	status, err := c.conn.ServerStatus(ctx, c.opts.hasAdditionalMetric("tcmalloc"))
	if err != nil {
		c.sink.ServiceCheck(ServiceCheckName, StatusCritical, serviceCheckTags, err.Error())
		return errors.WithStack(err)
	}
	c.sink.ServiceCheck(ServiceCheckName, StatusOK, serviceCheckTags, "")

	if err := commandFailure(status); err != nil {
		return errors.WithStack(err)
	}

	// Values computed outside the status document but submitted under
	// cataloged field paths.
	derived := map[string]float64{}
	c.collectFsyncLock(ctx, derived)

	serverVersion := c.discoverVersion(ctx)

	if c.opts.replicaCheckEnabled() {
		tags = c.collectReplicaInfo(ctx, derived, tags)
	}

	dbNames, err := c.conn.ListDatabaseNames(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	c.sink.Metric("mongodb.dbs", float64(len(dbNames)), Gauge, tags)

	dbStats := map[string]*birch.Document{}
	for _, name := range dbNames {
		stats, err := c.conn.DatabaseStats(ctx, name)
		if err != nil {
			grip.Warning(message.WrapError(err, message.Fields{
				"message":  "problem fetching database stats",
				"database": name,
				"server":   c.identity,
			}))
			continue
		}
		dbStats[name] = stats
	}

	if err := c.sweepCatalog(plan, status, derived, tags); err != nil {
		return errors.WithStack(err)
	}
	if err := c.sweepDatabaseStats(plan, dbStats, tags); err != nil {
		return errors.WithStack(err)
	}

	if c.opts.CollectionsIndexesStats {
		if serverVersion != nil && !serverVersion.LessThan(indexStatsMinVersion) {
			c.collectIndexStats(ctx, tags)
		} else {
			grip.Error(message.Fields{
				"message": "'collections_indexes_stats' is only available starting from mongo 3.2",
				"server":  c.identity,
			})
		}
	}

	if c.opts.hasAdditionalMetric("top") {
		if err := c.collectTopMetrics(ctx, tags); err != nil {
			grip.Warning(message.WrapError(err, message.Fields{
				"message": "failed to record top metrics",
				"server":  c.identity,
			}))
		}
	}

	if containsString(dbNames, "local") {
		if err := c.collectReplicationInfo(ctx, plan, tags); err != nil {
			grip.Warning(message.WrapError(err, message.Fields{
				"message": "failed to record replication info metrics",
				"server":  c.identity,
			}))
		}
	} else {
		grip.Debug(message.Fields{
			"message": "'local' database not present, not collecting replication info metrics",
			"server":  c.identity,
		})
	}

	if err := c.collectCollectionStats(ctx, tags); err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "failed to record collection metrics",
			"server":  c.identity,
		}))
	}

	customQueryTags := append(append([]string{}, tags...), "db:"+c.dbName)
	for _, query := range c.opts.CustomQueries {
		if err := runCustomQuery(ctx, c.conn, query, customQueryTags, c.sink); err != nil {
			grip.Warning(message.WrapError(err, message.Fields{
				"message":       "errors while collecting custom metrics",
				"metric_prefix": query.MetricPrefix,
				"server":        c.identity,
			}))
		}
	}

	return nil
}

// collectFsyncLock records whether the server currently holds the
// fsync lock. Best effort; the flag just feeds the fsyncLocked gauge.
func (c *Check) collectFsyncLock(ctx context.Context, derived map[string]float64) {
	ops, err := c.conn.CurrentOp(ctx)
	if err != nil {
		grip.Debug(message.WrapError(err, message.Fields{
			"message": "problem fetching current operations",
			"server":  c.identity,
		}))
		return
	}

	derived["fsyncLocked"] = 0
	if locked := ops.Lookup("fsyncLock"); locked != nil {
		if locked.Type() == bsontype.Boolean && locked.Boolean() {
			derived["fsyncLocked"] = 1
		}
	}
}

func (c *Check) discoverVersion(ctx context.Context) *semver.Version {
	raw, err := c.conn.ServerVersion(ctx)
	if err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "error collecting the version from the mongo server",
			"server":  c.identity,
		}))
		return nil
	}

	c.sink.DiscoveredVersion(raw)

	version, err := semver.NewVersion(raw)
	if err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "unparseable server version, version-gated features disabled",
			"version": raw,
			"server":  c.identity,
		}))
		return nil
	}
	return version
}

// collectReplicaInfo gathers replica set health, lag, and vote
// metrics, extends the cycle tags with the set name and member state,
// and feeds the member state to the transition tracker. Any failure
// here (including a server not running with --replSet) skips only
// this feature.
func (c *Check) collectReplicaInfo(ctx context.Context, derived map[string]float64, tags []string) []string {
	replStatus, err := c.conn.ReplSetStatus(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "--replSet") {
			grip.Debug(message.Fields{
				"message": "server is not running as a replica set member",
				"server":  c.identity,
			})
		} else {
			grip.Warning(message.WrapError(err, message.Fields{
				"message": "problem fetching replica set status",
				"server":  c.identity,
			}))
		}
		return tags
	}

	setName := lookupString(replStatus, "set")
	myState, ok := lookupInt(replStatus, "myState")
	if !ok {
		grip.Warning(message.Fields{
			"message": "replica set status did not report a member state",
			"server":  c.identity,
		})
		return tags
	}

	tags = append(tags,
		"replset_name:"+setName,
		"replset_state:"+strings.ToLower(StateName(myState)))

	var current, primary *birch.Document
	eachArrayDocument(replStatus.Lookup("members"), func(member *birch.Document) {
		if selfFlag := member.Lookup("self"); selfFlag != nil && selfFlag.Type() == bsontype.Boolean && selfFlag.Boolean() {
			current = member
		}
		if state, ok := lookupInt(member, "state"); ok && state == 1 {
			primary = member
		}
	})

	if current != nil && primary != nil {
		primaryOptime, pok := lookupTime(primary, "optimeDate")
		currentOptime, cok := lookupTime(current, "optimeDate")
		if pok && cok {
			derived["replSet.replicationLag"] = roundValue(primaryOptime.Sub(currentOptime).Seconds())
		}
	}

	if current != nil {
		if health, ok := lookupFloat(current, "health"); ok {
			derived["replSet.health"] = health
		}
		c.collectVoteFraction(ctx, current, derived)
	}

	derived["replSet.state"] = float64(myState)

	if event, changed := c.state.ObserveReplicaState(c.identity, myState, setName, c.localHostname); changed {
		c.sink.Event(event)
	}

	return tags
}

// collectVoteFraction computes this member's share of the replica
// set's vote weight from the set configuration.
func (c *Check) collectVoteFraction(ctx context.Context, current *birch.Document, derived map[string]float64) {
	cfg, err := c.conn.ReplSetConfig(ctx)
	if err != nil {
		grip.Warning(message.WrapError(err, message.Fields{
			"message": "problem fetching replica set config",
			"server":  c.identity,
		}))
		return
	}

	currentID, hasID := lookupInt(current, "_id")

	var total, own float64
	var found bool
	eachArrayDocument(cfg.Lookup("members"), func(member *birch.Document) {
		votes, ok := lookupFloat(member, "votes")
		if !ok {
			votes = 1
		}
		total += votes

		if id, ok := lookupInt(member, "_id"); ok && hasID && id == currentID {
			own = votes
			found = true
		}
	})

	if !found || total == 0 {
		return
	}
	derived["replSet.votes"] = own
	derived["replSet.voteFraction"] = own / total
}

// sweepCatalog drives the extractor over every non-stats definition in
// the plan against the server status document, preferring derived
// values computed earlier in the cycle. A present but non-numeric
// field aborts the cycle.
func (c *Check) sweepCatalog(plan CollectionPlan, status *birch.Document, derived map[string]float64, tags []string) error {
	for path, def := range plan {
		if strings.HasPrefix(path, "stats.") {
			continue
		}

		value, present := derived[path]
		if !present {
			var err error
			value, present, err = ExtractValue(status, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if !present {
				continue
			}
		}

		kind, name := resolveMetric(path, def, "")
		c.sink.Metric(name, value, kind, tags)
	}
	return nil
}

// sweepDatabaseStats submits the stats.* definitions once per
// database, against that database's dbStats document.
func (c *Check) sweepDatabaseStats(plan CollectionPlan, dbStats map[string]*birch.Document, tags []string) error {
	for dbName, stats := range dbStats {
		dbTags := append(append([]string{}, tags...),
			"cluster:db:"+dbName, // kept for backward compatibility
			"db:"+dbName)

		for path, def := range plan {
			if !strings.HasPrefix(path, "stats.") {
				continue
			}

			field := strings.SplitN(path, ".", 2)[1]
			value, present, err := ExtractValue(stats, field)
			if err != nil {
				return errors.WithStack(err)
			}
			if !present {
				continue
			}

			kind, name := resolveMetric(path, def, "")
			c.sink.Metric(name, value, kind, dbTags)
		}
	}
	return nil
}

// collectIndexStats reports index access counters for the configured
// collections via $indexStats. Per-collection failures are logged and
// skipped.
func (c *Check) collectIndexStats(ctx context.Context, tags []string) {
	for _, collection := range c.opts.Collections {
		rows, err := c.conn.IndexStats(ctx, collection)
		if err != nil {
			grip.Error(message.WrapError(err, message.Fields{
				"message":    "could not fetch indexes stats",
				"collection": collection,
				"server":     c.identity,
			}))
			continue
		}

		for _, stats := range rows {
			indexName := lookupString(stats, "name")
			if indexName == "" {
				indexName = "unknown"
			}
			value, present, err := ExtractValue(stats, "accesses.ops")
			if err != nil || !present {
				value = 0
			}

			indexTags := append(append([]string{}, tags...),
				"name:"+indexName,
				"collection:"+collection)
			c.sink.Metric("mongodb.collection.indexes.accesses.ops", value, Gauge, indexTags)
		}
	}
}

// collectTopMetrics reports per-namespace usage statistics from the
// top command under the usage prefix segment.
func (c *Check) collectTopMetrics(ctx context.Context, tags []string) error {
	top, err := c.conn.Top(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	totalsValue := top.Lookup("totals")
	if totalsValue == nil || totalsValue.Type() != bsontype.EmbeddedDocument {
		return errors.New("top result did not include totals")
	}
	totals := totalsValue.MutableDocument()

	iter := totals.Iterator()
	for iter.Next() {
		elem := iter.Element()
		ns := elem.Key()
		if !strings.Contains(ns, ".") {
			continue
		}
		if elem.Value().Type() != bsontype.EmbeddedDocument {
			continue
		}
		nsMetrics := elem.Value().MutableDocument()

		parts := strings.SplitN(ns, ".", 2)
		nsTags := append(append([]string{}, tags...),
			"db:"+parts[0],
			"collection:"+parts[1])

		for path, def := range topMetrics {
			value, present, err := ExtractValue(nsMetrics, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if !present {
				continue
			}

			kind, name := resolveMetric(path, def, "usage")
			c.sink.Metric(name, value, kind, nsTags)

			// The historical gauge under the rate name, kept so
			// existing dashboards do not lose it.
			if strings.HasSuffix(name, "countps") {
				c.sink.Metric(strings.TrimSuffix(name, "ps"), value, Gauge, nsTags)
			}
		}
	}
	return errors.WithStack(iter.Err())
}

// Candidate oplog collection names, tried in order; the first with
// non-empty options wins.
var oplogCollectionCandidates = []string{"oplog.rs", "oplog.$main"}

// collectReplicationInfo reports oplog size and window metrics,
// analogous to the shell's db.getReplicationInfo().
func (c *Check) collectReplicationInfo(ctx context.Context, plan CollectionPlan, tags []string) error {
	var (
		collName string
		collOpts *birch.Document
	)
	for _, candidate := range oplogCollectionCandidates {
		opts, err := c.conn.CollectionOptions(ctx, "local", candidate)
		if err != nil {
			return errors.WithStack(err)
		}
		if opts != nil && opts.Len() > 0 {
			collName = candidate
			collOpts = opts
			break
		}
	}
	if collOpts == nil {
		return nil
	}

	oplogData := map[string]float64{}

	size, ok := lookupFloat(collOpts, "size")
	if !ok {
		return errors.New("oplog options did not report a size")
	}
	oplogData["logSizeMB"] = roundValue(size / bytesPerMB)

	stats, err := c.conn.CollStats(ctx, "local", collName)
	if err != nil {
		return errors.WithStack(err)
	}
	if used, ok := lookupFloat(stats, "size"); ok {
		oplogData["usedSizeMB"] = roundValue(used / bytesPerMB)
	}

	first, last, err := c.conn.OplogTimestampBounds(ctx, collName)
	if err != nil {
		return errors.WithStack(err)
	}
	if !first.IsZero() && !last.IsZero() {
		oplogData["timeDiff"] = roundValue(last.Sub(first).Seconds())
	}

	for field, value := range oplogData {
		path := "oplog." + field
		def, ok := plan[path]
		if !ok {
			continue
		}
		kind, name := resolveMetric(path, def, "")
		c.sink.Metric(name, value, kind, tags)
	}
	return nil
}

// collectCollectionStats reports collStats metrics for each configured
// collection, fanning indexSizes out per index.
func (c *Check) collectCollectionStats(ctx context.Context, tags []string) error {
	for _, collection := range c.opts.Collections {
		stats, err := c.conn.CollStats(ctx, c.dbName, collection)
		if err != nil {
			return errors.WithStack(err)
		}

		collTags := append(append([]string{}, tags...),
			"db:"+c.dbName,
			"collection:"+collection)

		for _, statName := range collectionStatNames() {
			path := "collection." + statName
			def := collectionMetrics[path]

			value := stats.Lookup(statName)
			if value == nil {
				continue
			}

			if statName == "indexSizes" {
				if value.Type() != bsontype.EmbeddedDocument {
					continue
				}
				kind, name := resolveMetric(path, def, "")
				sizes := value.MutableDocument()
				iter := sizes.Iterator()
				for iter.Next() {
					elem := iter.Element()
					size, ok := numericValue(elem.Value())
					if !ok {
						continue
					}
					indexTags := append(append([]string{}, collTags...), "index:"+elem.Key())
					c.sink.Metric(name, size, kind, indexTags)
				}
				continue
			}

			num, ok := numericValue(value)
			if !ok || num == 0 {
				// Absent and zero-valued stats are both skipped.
				continue
			}
			kind, name := resolveMetric(path, def, "")
			c.sink.Metric(name, num, kind, collTags)
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// eachArrayDocument calls fn for every embedded document in an array
// value, tolerating nil and non-array values.
func eachArrayDocument(value *birch.Value, fn func(*birch.Document)) {
	if value == nil || value.Type() != bsontype.Array {
		return
	}

	iter := value.MutableArray().Iterator()
	for iter.Next() {
		v := iter.Value()
		if v.Type() == bsontype.EmbeddedDocument {
			fn(v.MutableDocument())
		}
	}
}

func lookupString(doc *birch.Document, key string) string {
	value := doc.Lookup(key)
	if value == nil || value.Type() != bsontype.String {
		return ""
	}
	return value.StringValue()
}

func lookupFloat(doc *birch.Document, key string) (float64, bool) {
	value := doc.Lookup(key)
	if value == nil {
		return 0, false
	}
	return numericValue(value)
}

func lookupInt(doc *birch.Document, key string) (int, bool) {
	num, ok := lookupFloat(doc, key)
	if !ok {
		return 0, false
	}
	return int(num), true
}

func lookupTime(doc *birch.Document, key string) (time.Time, bool) {
	value := doc.Lookup(key)
	if value == nil || value.Type() != bsontype.DateTime {
		return time.Time{}, false
	}
	return value.Time(), true
}
