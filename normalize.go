package mongocheck

import "strings"

const metricNamespace = "mongodb"

// Lock-mode suffix tokens are case sensitive: the same letter upper and
// lower cased names a different lock mode, so the substitution must
// happen before the name is lower-cased.
//
// https://docs.mongodb.org/manual/reference/command/serverStatus/#server-status-locks
var lockModeTokens = map[string]string{
	"R": "shared",
	"r": "intent_shared",
	"W": "exclusive",
	"w": "intent_exclusive",
}

// normalizeMetricName produces the externally visible metric name for a
// raw field path (or its alias): lock-mode tokens are substituted,
// the remainder is lower-cased and scrubbed, the namespace prefix (and
// optional extra prefix segment) is prepended, and rate metrics get the
// per-second suffix.
func normalizeMetricName(name string, kind Kind, prefix string) string {
	tokens := strings.Split(name, ".")
	for i := 1; i < len(tokens); i++ {
		if mode, ok := lockModeTokens[tokens[i]]; ok {
			tokens[i] = mode
		}
	}

	normalized := scrubName(strings.ToLower(strings.Join(tokens, ".")))

	out := metricNamespace
	if prefix != "" {
		out += "." + prefix
	}
	out += "." + normalized

	if kind == Rate {
		out += "ps"
	}

	return out
}

// scrubName rewrites any run of characters outside [a-z0-9._] to a
// single underscore, covering serverStatus fields that embed spaces
// and dashes without a declared alias.
func scrubName(name string) string {
	var (
		b       strings.Builder
		scrubbed bool
	)
	b.Grow(len(name))

	for _, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_'
		if valid {
			b.WriteRune(r)
			scrubbed = false
			continue
		}
		if !scrubbed {
			b.WriteByte('_')
			scrubbed = true
		}
	}

	return b.String()
}

// resolveMetric returns the submission kind and final metric name for a
// cataloged field path, preferring the definition's alias when it has
// one.
func resolveMetric(path string, def Definition, prefix string) (Kind, string) {
	name := path
	if def.Alias != "" {
		name = def.Alias
	}
	return def.Kind, normalizeMetricName(name, def.Kind, prefix)
}
