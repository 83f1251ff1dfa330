package store

import "encoding/json"

// encodeStrings marshals a string slice to its JSON-array column
// representation, normalizing a nil slice to "[]" so scans never see NULL.
func encodeStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

// decodeStrings is the inverse of encodeStrings; a malformed or empty
// column decodes to nil rather than erroring, since tags/files are
// advisory metadata, not load-bearing for correctness.
func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return nil
	}
	return ss
}

func encodeInt64s(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeInt64s(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
