package mongocheck

import (
	"context"
	"time"

	"github.com/evergreen-ci/birch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connector supplies server documents to the check. The check itself
// never opens sockets or touches credentials; everything it knows
// about the server arrives through this boundary as birch documents.
type Connector interface {
	// ServerStatus fetches the primary status document, optionally
	// asking the server to include the tcmalloc section.
	ServerStatus(ctx context.Context, includeTCMalloc bool) (*birch.Document, error)
	// CurrentOp fetches the current operation report used for the
	// fsync lock flag.
	CurrentOp(ctx context.Context) (*birch.Document, error)
	// ServerVersion reports the server's version string.
	ServerVersion(ctx context.Context) (string, error)
	// DatabaseStats fetches the dbStats document for one database.
	DatabaseStats(ctx context.Context, name string) (*birch.Document, error)
	// ListDatabaseNames lists the databases visible to the connection.
	ListDatabaseNames(ctx context.Context) ([]string, error)
	// ReplSetStatus runs replSetGetStatus against the admin database.
	ReplSetStatus(ctx context.Context) (*birch.Document, error)
	// ReplSetConfig fetches the replica set configuration document
	// from local.system.replset.
	ReplSetConfig(ctx context.Context) (*birch.Document, error)
	// Top fetches per-namespace usage statistics.
	Top(ctx context.Context) (*birch.Document, error)
	// CollStats runs collStats for a collection in the named database.
	CollStats(ctx context.Context, dbName, collection string) (*birch.Document, error)
	// CollectionOptions returns the options document of a collection
	// in the named database, or nil when the collection does not
	// exist.
	CollectionOptions(ctx context.Context, dbName, collection string) (*birch.Document, error)
	// IndexStats runs the $indexStats aggregation for a collection in
	// the configured database.
	IndexStats(ctx context.Context, collection string) ([]*birch.Document, error)
	// OplogTimestampBounds returns the first and last entry times of
	// the named oplog collection in natural order. Zero times with a
	// nil error mean the collection holds no usable entries.
	OplogTimestampBounds(ctx context.Context, collection string) (time.Time, time.Time, error)
	// RunCommand executes a command against the configured database
	// with the collection name as the command value and returns the
	// raw result document.
	RunCommand(ctx context.Context, command, collection string, args map[string]interface{}) (*birch.Document, error)
	// RunCommandRows executes a cursor-producing command and returns
	// every result row, exhausting the cursor.
	RunCommandRows(ctx context.Context, command, collection string, args map[string]interface{}) ([]*birch.Document, error)
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

type mongoConnector struct {
	client *mongo.Client
	dbName string
}

// NewConnector dials a MongoDB endpoint with bounded timeouts,
// primary-preferred reads, and majority read concern so that values
// read within one cycle cannot go backwards between commands.
func NewConnector(uri string, timeout time.Duration) (Connector, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetTimeout(timeout).
		SetReadPreference(readpref.PrimaryPreferred()).
		SetReadConcern(readconcern.Majority()))
	if err != nil {
		return nil, newConnectionError(errors.Wrap(err, "problem constructing mongodb client"))
	}

	return &mongoConnector{client: client, dbName: databaseFromURI(uri)}, nil
}

func (c *mongoConnector) ServerStatus(ctx context.Context, includeTCMalloc bool) (*birch.Document, error) {
	cmd := bson.D{{Key: "serverStatus", Value: 1}}
	if includeTCMalloc {
		cmd = append(cmd, bson.E{Key: "tcmalloc", Value: true})
	}

	doc, err := c.adminCommand(ctx, cmd)
	if err != nil {
		return nil, newConnectionError(errors.Wrap(err, "problem fetching server status"))
	}
	return doc, nil
}

func (c *mongoConnector) CurrentOp(ctx context.Context) (*birch.Document, error) {
	doc, err := c.adminCommand(ctx, bson.D{{Key: "currentOp", Value: 1}})
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrap(err, "problem fetching current operations"))
	}
	return doc, nil
}

func (c *mongoConnector) ServerVersion(ctx context.Context) (string, error) {
	doc, err := c.adminCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}})
	if err != nil {
		return "", newQueryExecutionError(errors.Wrap(err, "problem fetching build info"))
	}

	version := doc.Lookup("version")
	if version == nil {
		return "", newQueryExecutionError(errors.New("build info did not report a version"))
	}
	return version.StringValue(), nil
}

func (c *mongoConnector) DatabaseStats(ctx context.Context, name string) (*birch.Document, error) {
	raw, err := c.client.Database(name).RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Raw()
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem fetching stats for database %s", name))
	}
	return birchFromRaw(raw)
}

func (c *mongoConnector) ListDatabaseNames(ctx context.Context) ([]string, error) {
	names, err := c.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, newConnectionError(errors.Wrap(err, "problem listing databases"))
	}
	return names, nil
}

func (c *mongoConnector) ReplSetStatus(ctx context.Context) (*birch.Document, error) {
	doc, err := c.adminCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}})
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrap(err, "problem fetching replica set status"))
	}
	return doc, nil
}

func (c *mongoConnector) ReplSetConfig(ctx context.Context) (*birch.Document, error) {
	raw, err := c.client.Database("local").Collection("system.replset").
		FindOne(ctx, bson.D{}).Raw()
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrap(err, "problem fetching replica set config"))
	}
	return birchFromRaw(raw)
}

func (c *mongoConnector) Top(ctx context.Context) (*birch.Document, error) {
	doc, err := c.adminCommand(ctx, bson.D{{Key: "top", Value: 1}})
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrap(err, "problem fetching top usage statistics"))
	}
	return doc, nil
}

func (c *mongoConnector) CollStats(ctx context.Context, dbName, collection string) (*birch.Document, error) {
	raw, err := c.client.Database(dbName).
		RunCommand(ctx, bson.D{{Key: "collStats", Value: collection}}).Raw()
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem fetching stats for collection %s", collection))
	}
	return birchFromRaw(raw)
}

func (c *mongoConnector) CollectionOptions(ctx context.Context, dbName, collection string) (*birch.Document, error) {
	cur, err := c.client.Database(dbName).ListCollections(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem listing collection %s", collection))
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		doc, err := birchFromRaw(cur.Current)
		if err != nil {
			return nil, err
		}
		if opts := doc.Lookup("options"); opts != nil {
			return opts.MutableDocument(), nil
		}
	}
	if err := cur.Err(); err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem listing collection %s", collection))
	}

	return nil, nil
}

func (c *mongoConnector) IndexStats(ctx context.Context, collection string) ([]*birch.Document, error) {
	cur, err := c.client.Database(c.dbName).Collection(collection).
		Aggregate(ctx, mongo.Pipeline{{{Key: "$indexStats", Value: bson.D{}}}})
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem fetching index stats for collection %s", collection))
	}
	defer cur.Close(ctx)

	return readAllRows(ctx, cur)
}

func (c *mongoConnector) OplogTimestampBounds(ctx context.Context, collection string) (time.Time, time.Time, error) {
	coll := c.client.Database("local").Collection(collection)
	filter := bson.D{{Key: "ts", Value: bson.D{{Key: "$exists", Value: true}}}}

	first, err := c.oplogEntryTime(ctx, coll, filter, 1)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := c.oplogEntryTime(ctx, coll, filter, -1)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return first, last, nil
}

func (c *mongoConnector) oplogEntryTime(ctx context.Context, coll *mongo.Collection, filter bson.D, direction int) (time.Time, error) {
	raw, err := coll.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "$natural", Value: direction}})).Raw()
	if errors.Cause(err) == mongo.ErrNoDocuments {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, newQueryExecutionError(errors.Wrap(err, "problem reading oplog bounds"))
	}

	ts, err := raw.LookupErr("ts")
	if err != nil {
		return time.Time{}, nil
	}
	seconds, _ := ts.Timestamp()
	return time.Unix(int64(seconds), 0), nil
}

func (c *mongoConnector) RunCommand(ctx context.Context, command, collection string, args map[string]interface{}) (*birch.Document, error) {
	raw, err := c.client.Database(c.dbName).RunCommand(ctx, commandDocument(command, collection, args)).Raw()
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem running %s command", command))
	}
	return birchFromRaw(raw)
}

func (c *mongoConnector) RunCommandRows(ctx context.Context, command, collection string, args map[string]interface{}) ([]*birch.Document, error) {
	cur, err := c.client.Database(c.dbName).RunCommandCursor(ctx, commandDocument(command, collection, args))
	if err != nil {
		return nil, newQueryExecutionError(errors.Wrapf(err, "problem running %s command", command))
	}
	defer cur.Close(ctx)

	return readAllRows(ctx, cur)
}

func (c *mongoConnector) Close(ctx context.Context) error {
	return errors.Wrap(c.client.Disconnect(ctx), "problem disconnecting client")
}

func (c *mongoConnector) adminCommand(ctx context.Context, cmd bson.D) (*birch.Document, error) {
	raw, err := c.client.Database("admin").RunCommand(ctx, cmd).Raw()
	if err != nil {
		return nil, err
	}
	return birchFromRaw(raw)
}

// commandDocument assembles a runnable command: the command name must
// be the first element with the target collection as its value, the
// remaining arguments follow in any order.
func commandDocument(command, collection string, args map[string]interface{}) bson.D {
	cmd := bson.D{{Key: command, Value: collection}}
	for key, value := range args {
		cmd = append(cmd, bson.E{Key: key, Value: value})
	}
	return cmd
}

func readAllRows(ctx context.Context, cur *mongo.Cursor) ([]*birch.Document, error) {
	var rows []*birch.Document
	for cur.Next(ctx) {
		doc, err := birchFromRaw(cur.Current)
		if err != nil {
			return nil, err
		}
		rows = append(rows, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, newQueryExecutionError(errors.Wrap(err, "problem iterating command cursor"))
	}
	return rows, nil
}

func birchFromRaw(raw bson.Raw) (*birch.Document, error) {
	doc, err := birch.ReadDocument([]byte(raw))
	if err != nil {
		return nil, errors.Wrap(err, "problem parsing result document")
	}
	return doc, nil
}
