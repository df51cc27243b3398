package mongocheck

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evergreen-ci/birch"
	"github.com/evergreen-ci/birch/bsontype"
)

// ExtractValue walks a dot-separated field path through a nested status
// document. A missing key at any depth, or a path that descends into a
// scalar, reports absence rather than an error. A value that is present
// but not numeric fails with a type mismatch; that asymmetry is
// deliberate, since a wrong-typed field signals catalog or server
// drift while a missing field is just an older or differently
// configured server.
func ExtractValue(doc *birch.Document, path string) (float64, bool, error) {
	if doc == nil {
		return 0, false, nil
	}

	segments := strings.Split(path, ".")
	current := doc

	for idx, segment := range segments {
		value := current.Lookup(segment)
		if value == nil {
			return 0, false, nil
		}

		if idx == len(segments)-1 {
			num, ok := numericValue(value)
			if !ok {
				return 0, false, newTypeMismatchError(path, value.Interface())
			}
			return num, true, nil
		}

		if value.Type() != bsontype.EmbeddedDocument {
			return 0, false, nil
		}
		current = value.MutableDocument()
	}

	return 0, false, nil
}

// numericValue converts a document leaf into a float64. Booleans
// promote to 0/1, matching how diagnostic collectors flatten them.
func numericValue(value *birch.Value) (float64, bool) {
	switch value.Type() {
	case bsontype.Double:
		return value.Double(), true
	case bsontype.Int32:
		return float64(value.Int32()), true
	case bsontype.Int64:
		return float64(value.Int64()), true
	case bsontype.Boolean:
		if value.Boolean() {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// coerceFloat is the looser conversion used for custom query rows,
// where numeric content may arrive as a string.
func coerceFloat(value *birch.Value) (float64, bool) {
	if num, ok := numericValue(value); ok {
		return num, true
	}
	if value.Type() == bsontype.String {
		num, err := strconv.ParseFloat(value.StringValue(), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	}
	return 0, false
}

// stringifyValue renders a row field for use in a tag.
func stringifyValue(value *birch.Value) string {
	switch value.Type() {
	case bsontype.String:
		return value.StringValue()
	case bsontype.Double:
		return strconv.FormatFloat(value.Double(), 'f', -1, 64)
	case bsontype.Int32:
		return strconv.FormatInt(int64(value.Int32()), 10)
	case bsontype.Int64:
		return strconv.FormatInt(value.Int64(), 10)
	case bsontype.Boolean:
		return strconv.FormatBool(value.Boolean())
	default:
		return fmt.Sprintf("%v", value.Interface())
	}
}
