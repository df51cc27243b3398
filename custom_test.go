package mongocheck

import (
	"context"
	"testing"

	"github.com/evergreen-ci/birch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomQueryValidation(t *testing.T) {
	t.Run("MissingPrefix", func(t *testing.T) {
		_, err := CustomQuery{Query: map[string]interface{}{"count": "orders"}, CountType: "gauge"}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("TrailingDotsTrimmed", func(t *testing.T) {
		vq, err := CustomQuery{
			MetricPrefix: "shop.orders...",
			Query:        map[string]interface{}{"count": "orders"},
			CountType:    "gauge",
		}.validate()
		require.NoError(t, err)
		assert.Equal(t, "shop.orders", vq.prefix)
	})
	t.Run("MissingQuery", func(t *testing.T) {
		_, err := CustomQuery{MetricPrefix: "shop"}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("UnrecognizedCommand", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"distinct": "orders"},
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("MultipleCommands", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"find": "orders", "count": "orders"},
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("CountRequiresCountType", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"count": "orders"},
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("CountTypeMustBeAKind", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"count": "orders"},
			CountType:    "histogram",
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("FindRequiresFields", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"find": "orders"},
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("FieldRequiresAllParts", func(t *testing.T) {
		_, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"find": "orders"},
			Fields:       []CustomQueryField{{FieldName: "total"}},
		}.validate()
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
	t.Run("TagFieldTypeAllowed", func(t *testing.T) {
		vq, err := CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"find": "orders"},
			Fields: []CustomQueryField{
				{FieldName: "status", Name: "status", Type: "tag"},
				{FieldName: "total", Name: "total", Type: "gauge"},
			},
		}.validate()
		require.NoError(t, err)
		require.Len(t, vq.fields, 2)
		assert.Equal(t, Tag, vq.fields[0].kind)
		assert.Equal(t, Gauge, vq.fields[1].kind)
	})
	t.Run("CommandRemovedFromBody", func(t *testing.T) {
		vq, err := CustomQuery{
			MetricPrefix: "shop",
			Query: map[string]interface{}{
				"count": "orders",
				"query": map[string]interface{}{"status": "open"},
			},
			CountType: "monotonic_count",
		}.validate()
		require.NoError(t, err)
		assert.Equal(t, "count", vq.command)
		assert.Equal(t, "orders", vq.collection)
		assert.NotContains(t, vq.args, "count")
		assert.Contains(t, vq.args, "query")
		assert.Equal(t, MonotonicCount, vq.countKind)
	})
}

func TestRunCustomQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidDescriptorNeverExecutes", func(t *testing.T) {
		conn := &fakeConnector{}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"count": "orders"},
		}, nil, sink)
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
		assert.Empty(t, conn.lastCommand)
		assert.Empty(t, sink.Metrics)
	})
	t.Run("CountSubmitsScalar", func(t *testing.T) {
		conn := &fakeConnector{
			commandResult: birch.NewDocument(
				birch.EC.Double("ok", 1),
				birch.EC.Int32("n", 42),
			),
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop.orders",
			Query:        map[string]interface{}{"count": "orders"},
			CountType:    "rate",
		}, []string{"env:dev"}, sink)
		require.NoError(t, err)
		require.Len(t, sink.Metrics, 1)
		assert.Equal(t, "shop.orders", sink.Metrics[0].Name)
		assert.Equal(t, 42.0, sink.Metrics[0].Value)
		assert.Equal(t, Rate, sink.Metrics[0].Kind)
		assert.Contains(t, sink.Metrics[0].Tags, "env:dev")
		assert.Contains(t, sink.Metrics[0].Tags, "collection:orders")
		assert.Equal(t, "count", conn.lastCommand)
		assert.Equal(t, "orders", conn.lastCollection)
	})
	t.Run("DeclaredTagsRepeatingBaseTagsCollapse", func(t *testing.T) {
		conn := &fakeConnector{
			commandResult: birch.NewDocument(
				birch.EC.Double("ok", 1),
				birch.EC.Int32("n", 42),
			),
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop.orders",
			Query:        map[string]interface{}{"count": "orders"},
			CountType:    "gauge",
			Tags:         []string{"env:dev", "team:core"},
		}, []string{"env:dev", "db:admin"}, sink)
		require.NoError(t, err)
		require.Len(t, sink.Metrics, 1)

		count := 0
		for _, tag := range sink.Metrics[0].Tags {
			if tag == "env:dev" {
				count++
			}
		}
		assert.Equal(t, 1, count)
		assert.Contains(t, sink.Metrics[0].Tags, "team:core")
		assert.Contains(t, sink.Metrics[0].Tags, "db:admin")
	})
	t.Run("CommandFailureSurfacesServerMessage", func(t *testing.T) {
		conn := &fakeConnector{
			commandResult: birch.NewDocument(
				birch.EC.Double("ok", 0),
				birch.EC.String("errmsg", "unauthorized"),
			),
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop",
			Query:        map[string]interface{}{"count": "orders"},
			CountType:    "gauge",
		}, nil, sink)
		require.Error(t, err)
		assert.True(t, IsQueryExecutionError(err))
		assert.Contains(t, err.Error(), "unauthorized")
		assert.Empty(t, sink.Metrics)
	})
	t.Run("RowsMissingFieldSkipJustThatField", func(t *testing.T) {
		conn := &fakeConnector{
			commandRows: []*birch.Document{
				birch.NewDocument(birch.EC.Double("total", 10.5)),
				birch.NewDocument(birch.EC.String("status", "open")),
			},
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop.orders",
			Query:        map[string]interface{}{"find": "orders"},
			Fields: []CustomQueryField{
				{FieldName: "total", Name: "total", Type: "gauge"},
			},
		}, nil, sink)
		require.NoError(t, err)
		require.Len(t, sink.Metrics, 1)
		assert.Equal(t, "shop.orders.total", sink.Metrics[0].Name)
		assert.Equal(t, 10.5, sink.Metrics[0].Value)
	})
	t.Run("TagFieldsAreRowScoped", func(t *testing.T) {
		conn := &fakeConnector{
			commandRows: []*birch.Document{
				birch.NewDocument(
					birch.EC.String("status", "open"),
					birch.EC.Int32("total", 3),
				),
				birch.NewDocument(
					birch.EC.String("status", "closed"),
					birch.EC.Int32("total", 5),
				),
			},
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop.orders",
			Query:        map[string]interface{}{"aggregate": "orders"},
			Tags:         []string{"team:payments"},
			Fields: []CustomQueryField{
				{FieldName: "status", Name: "status", Type: "tag"},
				{FieldName: "total", Name: "total", Type: "count"},
			},
		}, nil, sink)
		require.NoError(t, err)
		require.Len(t, sink.Metrics, 2)

		assert.Contains(t, sink.Metrics[0].Tags, "status:open")
		assert.NotContains(t, sink.Metrics[0].Tags, "status:closed")
		assert.Contains(t, sink.Metrics[1].Tags, "status:closed")
		assert.NotContains(t, sink.Metrics[1].Tags, "status:open")

		for _, m := range sink.Metrics {
			assert.Contains(t, m.Tags, "team:payments")
			assert.Contains(t, m.Tags, "collection:orders")
			assert.Equal(t, Count, m.Kind)
		}
	})
	t.Run("NonCoercibleValueSkipsField", func(t *testing.T) {
		conn := &fakeConnector{
			commandRows: []*birch.Document{
				birch.NewDocument(
					birch.EC.String("total", "not-a-number"),
					birch.EC.String("count", "17"),
				),
			},
		}
		sink := NewRecordingSink()

		err := runCustomQuery(ctx, conn, CustomQuery{
			MetricPrefix: "shop.orders",
			Query:        map[string]interface{}{"find": "orders"},
			Fields: []CustomQueryField{
				{FieldName: "total", Name: "total", Type: "gauge"},
				{FieldName: "count", Name: "count", Type: "gauge"},
			},
		}, nil, sink)
		require.NoError(t, err)
		require.Len(t, sink.Metrics, 1)
		assert.Equal(t, "shop.orders.count", sink.Metrics[0].Name)
		assert.Equal(t, 17.0, sink.Metrics[0].Value)
	})
}
