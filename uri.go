package mongocheck

import (
	"math"
	"strings"
)

// Connection strings are the endpoint identity for caching and state
// tracking, so the sanitized form must be stable: only the password is
// masked, everything else is preserved byte for byte.
//
// The driver's own connection string parser lives under its unstable
// x/ tree, and multi-host mongodb URIs are not valid net/url input, so
// the small amount of surgery here is done directly on the string.

const passwordMask = "*****"

// sanitizeURI masks the password component of a MongoDB connection
// string for use in human-facing output and as the cache key.
func sanitizeURI(uri string) string {
	rest := uri
	scheme := ""
	if idx := strings.Index(uri, "://"); idx >= 0 {
		scheme = uri[:idx+3]
		rest = uri[idx+3:]
	}

	at := strings.LastIndex(hostPortion(rest), "@")
	if at < 0 {
		return uri
	}

	creds := rest[:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return uri
	}

	return scheme + creds[:colon] + ":" + passwordMask + rest[at:]
}

// hostPortion trims the path and options from the part of a connection
// string that follows the scheme.
func hostPortion(rest string) string {
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return rest[:slash]
	}
	return rest
}

// eventHostname derives a host to attribute a replica membership event
// to: scheme and credentials stripped, the first node's port dropped.
// A localhost connection falls back to the supplied local hostname.
func eventHostname(identity, localHostname string) string {
	rest := identity
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	rest = hostPortion(rest)

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}

	host := rest
	if comma := strings.Index(host, ","); comma >= 0 {
		host = host[:comma]
	}
	if colon := strings.Index(host, ":"); colon >= 0 {
		host = host[:colon]
	}

	if host == "localhost" && localHostname != "" {
		host = localHostname
	}

	return host
}

// firstNode returns the first host and port named by a connection
// string, defaulting the port to 27017.
func firstNode(uri string) (string, string) {
	rest := uri
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	rest = hostPortion(rest)
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if comma := strings.Index(rest, ","); comma >= 0 {
		rest = rest[:comma]
	}

	if colon := strings.Index(rest, ":"); colon >= 0 {
		return rest[:colon], rest[colon+1:]
	}
	return rest, "27017"
}

// databaseFromURI extracts the database named by the connection
// string's path, defaulting to admin.
func databaseFromURI(uri string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "admin"
	}

	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return "admin"
	}
	return name
}

// roundValue rounds derived gauges (MB sizes, lag seconds) to two
// decimal places.
func roundValue(v float64) float64 {
	return math.Round(v*100) / 100
}

// dedupeTags returns the configured tag list with duplicates removed,
// preserving first-seen order.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
