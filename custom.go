package mongocheck

import (
	"context"
	"strings"

	"github.com/evergreen-ci/birch"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// CustomQuery is a user-authored descriptor turning a read-only server
// command into ad hoc metrics. It is validated in full before any
// command is issued; an invalid descriptor aborts only that query.
type CustomQuery struct {
	// MetricPrefix names the metric (count queries) or the metric
	// name prefix (find/aggregate queries). Trailing dots are
	// trimmed.
	MetricPrefix string `yaml:"metric_prefix"`
	// Query is the command body. Exactly one of the keys find, count,
	// or aggregate must be present; its value names the target
	// collection and is removed from the body before execution.
	Query map[string]interface{} `yaml:"query"`
	// CountType is the submission kind for a count query's scalar
	// result. Required for count queries, ignored otherwise.
	CountType string `yaml:"count_type"`
	// Fields declares how find/aggregate result row fields map to
	// metrics and tags. Required for find and aggregate queries.
	Fields []CustomQueryField `yaml:"fields"`
	// Tags are appended to every metric this query produces.
	Tags []string `yaml:"tags"`
}

// CustomQueryField maps one result row field to a metric suffix or a
// tag.
type CustomQueryField struct {
	FieldName string `yaml:"field_name"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
}

var customQueryCommands = []string{"aggregate", "count", "find"}

type validatedQuery struct {
	prefix     string
	command    string
	collection string
	args       map[string]interface{}
	countKind  Kind
	fields     []validatedField
}

type validatedField struct {
	fieldName string
	name      string
	kind      Kind
}

// validate checks the descriptor and resolves it into an executable
// form without issuing any command.
func (q CustomQuery) validate() (*validatedQuery, error) {
	catcher := grip.NewBasicCatcher()

	prefix := strings.TrimRight(q.MetricPrefix, ".")
	catcher.NewWhen(prefix == "", "custom query field 'metric_prefix' is required")
	catcher.NewWhen(len(q.Query) == 0, "custom query field 'query' is required")

	var present []string
	for _, command := range customQueryCommands {
		if _, ok := q.Query[command]; ok {
			present = append(present, command)
		}
	}
	if len(present) != 1 {
		catcher.Errorf("custom query command must be exactly one of %v", customQueryCommands)
	}
	if catcher.HasErrors() {
		return nil, newConfigurationError(catcher.Resolve())
	}

	command := present[0]
	collection, ok := q.Query[command].(string)
	if !ok || collection == "" {
		return nil, newConfigurationError(errors.Errorf(
			"custom query command '%s' must name a target collection", command))
	}

	args := make(map[string]interface{}, len(q.Query)-1)
	for key, value := range q.Query {
		if key != command {
			args[key] = value
		}
	}

	out := &validatedQuery{
		prefix:     prefix,
		command:    command,
		collection: collection,
		args:       args,
		countKind:  Gauge,
	}

	if command == "count" {
		if q.CountType == "" {
			return nil, newConfigurationError(errors.New(
				"custom query field 'count_type' is required with a 'count' query"))
		}
		kind, err := ParseKind(q.CountType)
		if err != nil {
			return nil, err
		}
		out.countKind = kind
		return out, nil
	}

	if len(q.Fields) == 0 {
		return nil, newConfigurationError(errors.New("custom query field 'fields' is required"))
	}
	for _, field := range q.Fields {
		catcher.NewWhen(field.FieldName == "",
			"field 'field_name' is required for metric_prefix "+prefix)
		catcher.NewWhen(field.Name == "",
			"field 'name' is required for metric_prefix "+prefix)
		if field.Type == "" {
			catcher.New("field 'type' is required for metric_prefix " + prefix)
			continue
		}
		kind, err := parseFieldKind(field.Type)
		if err != nil {
			catcher.Add(err)
			continue
		}
		out.fields = append(out.fields, validatedField{
			fieldName: field.FieldName,
			name:      field.Name,
			kind:      kind,
		})
	}
	if catcher.HasErrors() {
		return nil, newConfigurationError(catcher.Resolve())
	}

	return out, nil
}

// runCustomQuery validates and executes one custom query, submitting
// its metrics to the sink. The base tags are extended with the query's
// declared tags and the target collection.
func runCustomQuery(ctx context.Context, conn Connector, query CustomQuery, baseTags []string, sink Sink) error {
	vq, err := query.validate()
	if err != nil {
		return err
	}

	// Declared tags may repeat base tags; every emission gets a
	// duplicate-free set.
	tags := append([]string{}, baseTags...)
	tags = append(tags, query.Tags...)
	tags = append(tags, "collection:"+vq.collection)
	tags = dedupeTags(tags)

	if vq.command == "count" {
		result, err := conn.RunCommand(ctx, vq.command, vq.collection, vq.args)
		if err != nil {
			return err
		}
		if err := commandFailure(result); err != nil {
			return err
		}

		value := result.Lookup("n")
		if value == nil {
			return newQueryExecutionError(errors.Errorf(
				"count query for %s returned no result", vq.prefix))
		}
		num, ok := coerceFloat(value)
		if !ok {
			return newQueryExecutionError(errors.Errorf(
				"count query for %s returned a non-numeric result", vq.prefix))
		}

		sink.Metric(vq.prefix, num, vq.countKind, tags)
		return nil
	}

	rows, err := conn.RunCommandRows(ctx, vq.command, vq.collection, vq.args)
	if err != nil {
		return err
	}

	for _, row := range rows {
		submitRowMetrics(row, vq, tags, sink)
	}
	return nil
}

// submitRowMetrics scans one result row against the declared fields.
// Tag fields extend this row's tag set; metric fields coerce to a
// number, skipping just that field when the row lacks it or the value
// does not coerce. All of the row's metrics share the row's tag set.
func submitRowMetrics(row *birch.Document, vq *validatedQuery, tags []string, sink Sink) {
	rowTags := append([]string{}, tags...)
	queued := make([]MetricRecord, 0, len(vq.fields))

	for _, field := range vq.fields {
		value := row.Lookup(field.fieldName)
		if value == nil {
			// Rows may legitimately differ in shape.
			continue
		}

		if field.kind == Tag {
			rowTags = append(rowTags, field.name+":"+stringifyValue(value))
			continue
		}

		num, ok := coerceFloat(value)
		if !ok {
			continue
		}
		queued = append(queued, MetricRecord{
			Name:  vq.prefix + "." + field.name,
			Value: num,
			Kind:  field.kind,
		})
	}

	rowTags = dedupeTags(rowTags)
	for _, metric := range queued {
		sink.Metric(metric.Name, metric.Value, metric.Kind, rowTags)
	}
}

// commandFailure converts a command result reporting ok == 0 into a
// query execution error carrying the server's message.
func commandFailure(result *birch.Document) error {
	ok := result.Lookup("ok")
	if ok == nil {
		return nil
	}
	if num, numeric := numericValue(ok); numeric && num == 0 {
		msg := "command failed"
		if errmsg := result.Lookup("errmsg"); errmsg != nil {
			msg = stringifyValue(errmsg)
		}
		return newQueryExecutionError(errors.New(msg))
	}
	return nil
}
