// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// FirstField returns the first present, non-empty value among the candidate
// field names, evaluated in order against a raw payload. Heterogeneous
// directories name the same logical field differently; callers list the
// variants and this helper picks whichever one the payload carries.
func FirstField(payload map[string]string, candidates ...string) string {
	for _, name := range candidates {
		if v, ok := payload[name]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// First is FirstField applied to the record's own payload.
func (r RawRecord) First(candidates ...string) string {
	return FirstField(r.Payload, candidates...)
}
