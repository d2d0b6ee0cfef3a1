package sink

import "github.com/google/uuid"

// partitionKeyAttrs lists, in priority order, the attribute names spec.md §6
// allows as the configured partitionKey source.
var partitionKeyAttrs = []string{
	"event_id", "event_fingerprint", "domain_userid", "network_userid",
	"user_ipaddress", "domain_sessionid", "user_fingerprint",
}

// partitionKey derives a record's partition key from its attribute map: the
// configured attribute's value if present, else the first non-empty
// attribute in partitionKeyAttrs order, else a random UUID. attrName, when
// non-empty, names exactly one attribute to prefer before falling through
// that priority list.
func partitionKey(rec Record, attrName string) string {
	if attrName != "" {
		if v, ok := rec.Attributes[attrName]; ok && v != "" {
			return v
		}
	}
	for _, name := range partitionKeyAttrs {
		if v, ok := rec.Attributes[name]; ok && v != "" {
			return v
		}
	}
	return uuid.New().String()
}
