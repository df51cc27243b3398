package mongocheck

import (
	"context"
	"time"

	"github.com/evergreen-ci/birch"
	"github.com/pkg/errors"
)

// fakeConnector serves canned documents so cycles can run without a
// server.
type fakeConnector struct {
	status        *birch.Document
	statusErr     error
	currentOp     *birch.Document
	version       string
	versionErr    error
	dbNames       []string
	dbStats       map[string]*birch.Document
	replStatus    *birch.Document
	replStatusErr error
	replConfig    *birch.Document
	top           *birch.Document
	topErr        error
	collStats     map[string]*birch.Document
	collOptions   map[string]*birch.Document
	indexStats    map[string][]*birch.Document
	oplogFirst    time.Time
	oplogLast     time.Time

	commandResult *birch.Document
	commandErr    error
	commandRows   []*birch.Document
	rowsErr       error

	lastCommand    string
	lastCollection string
	lastArgs       map[string]interface{}
}

func (f *fakeConnector) ServerStatus(_ context.Context, _ bool) (*birch.Document, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeConnector) CurrentOp(_ context.Context) (*birch.Document, error) {
	if f.currentOp == nil {
		return nil, newQueryExecutionError(errors.New("no currentOp fixture"))
	}
	return f.currentOp, nil
}

func (f *fakeConnector) ServerVersion(_ context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	if f.version == "" {
		return "0.0", nil
	}
	return f.version, nil
}

func (f *fakeConnector) DatabaseStats(_ context.Context, name string) (*birch.Document, error) {
	stats, ok := f.dbStats[name]
	if !ok {
		return nil, newQueryExecutionError(errors.Errorf("no stats fixture for database %s", name))
	}
	return stats, nil
}

func (f *fakeConnector) ListDatabaseNames(_ context.Context) ([]string, error) {
	return f.dbNames, nil
}

func (f *fakeConnector) ReplSetStatus(_ context.Context) (*birch.Document, error) {
	if f.replStatusErr != nil {
		return nil, f.replStatusErr
	}
	if f.replStatus == nil {
		return nil, newQueryExecutionError(errors.New("not running with --replSet"))
	}
	return f.replStatus, nil
}

func (f *fakeConnector) ReplSetConfig(_ context.Context) (*birch.Document, error) {
	if f.replConfig == nil {
		return nil, newQueryExecutionError(errors.New("no replica set config fixture"))
	}
	return f.replConfig, nil
}

func (f *fakeConnector) Top(_ context.Context) (*birch.Document, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}
	if f.top == nil {
		return nil, newQueryExecutionError(errors.New("no top fixture"))
	}
	return f.top, nil
}

func (f *fakeConnector) CollStats(_ context.Context, dbName, collection string) (*birch.Document, error) {
	stats, ok := f.collStats[dbName+"."+collection]
	if !ok {
		return nil, newQueryExecutionError(errors.Errorf("no collStats fixture for %s.%s", dbName, collection))
	}
	return stats, nil
}

func (f *fakeConnector) CollectionOptions(_ context.Context, dbName, collection string) (*birch.Document, error) {
	return f.collOptions[dbName+"."+collection], nil
}

func (f *fakeConnector) IndexStats(_ context.Context, collection string) ([]*birch.Document, error) {
	rows, ok := f.indexStats[collection]
	if !ok {
		return nil, newQueryExecutionError(errors.Errorf("no index stats fixture for %s", collection))
	}
	return rows, nil
}

func (f *fakeConnector) OplogTimestampBounds(_ context.Context, _ string) (time.Time, time.Time, error) {
	return f.oplogFirst, f.oplogLast, nil
}

func (f *fakeConnector) RunCommand(_ context.Context, command, collection string, args map[string]interface{}) (*birch.Document, error) {
	f.lastCommand = command
	f.lastCollection = collection
	f.lastArgs = args
	if f.commandErr != nil {
		return nil, f.commandErr
	}
	if f.commandResult == nil {
		return nil, newQueryExecutionError(errors.New("no command fixture"))
	}
	return f.commandResult, nil
}

func (f *fakeConnector) RunCommandRows(_ context.Context, command, collection string, args map[string]interface{}) ([]*birch.Document, error) {
	f.lastCommand = command
	f.lastCollection = collection
	f.lastArgs = args
	if f.rowsErr != nil {
		return nil, f.rowsErr
	}
	return f.commandRows, nil
}

func (f *fakeConnector) Close(_ context.Context) error { return nil }
