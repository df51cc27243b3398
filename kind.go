package mongocheck

import "github.com/pkg/errors"

// Kind determines how a metric value is submitted to the backend.
type Kind int

const (
	// Gauge submits the latest observed value.
	Gauge Kind = iota
	// Rate submits the value as a running counter converted to a
	// per-second rate by the backend.
	Rate
	// Count submits a raw monotonic count.
	Count
	// MonotonicCount submits a count with explicit monotonic semantics.
	MonotonicCount
	// Tag is only valid for custom query fields: the field's value
	// becomes a tag on the row's metrics rather than a metric itself.
	Tag
)

func (k Kind) String() string {
	switch k {
	case Gauge:
		return "gauge"
	case Rate:
		return "rate"
	case Count:
		return "count"
	case MonotonicCount:
		return "monotonic_count"
	case Tag:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseKind resolves a configured submission type string into a Kind,
// accepting only the four metric kinds. Unrecognized values produce a
// configuration error.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "gauge":
		return Gauge, nil
	case "rate":
		return Rate, nil
	case "count":
		return Count, nil
	case "monotonic_count":
		return MonotonicCount, nil
	default:
		return Gauge, newConfigurationError(errors.Errorf(
			"metric type '%s' is not one of [gauge rate count monotonic_count]", name))
	}
}

// parseFieldKind is ParseKind extended with the 'tag' marker used by
// custom query field declarations.
func parseFieldKind(name string) (Kind, error) {
	if name == "tag" {
		return Tag, nil
	}
	kind, err := ParseKind(name)
	if err != nil {
		return Gauge, newConfigurationError(errors.Errorf(
			"field type '%s' is not one of [gauge rate count monotonic_count tag]", name))
	}
	return kind, nil
}
