package qcache

import "encoding/json"

// canonicalJSON marshals a sorted string slice deterministically — the
// "canonicalJson(sortedMemberIds)" construction the RelatedGroup key layout
// is specified against.
func canonicalJSON(sorted []string) ([]byte, error) {
	return json.Marshal(sorted)
}
