package utils

// ClampLimit normalizes a caller-supplied result limit. Zero or negative
// values fall back to def; values above max are capped silently.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
