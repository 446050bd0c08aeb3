// Package sanitizer provides input normalization for station and booking data.
//
// All normalization functions are idempotent - applying them multiple times
// produces the same result. Functions handle invalid input gracefully,
// typically by returning empty strings rather than errors.
//
// Normalization includes:
//   - Strings: Collapse whitespace, trim leading/trailing spaces
//   - Time labels: Collapse whitespace, no case folding (labels are opaque)
//   - Search queries: Strip control characters, collapse whitespace
package sanitizer
