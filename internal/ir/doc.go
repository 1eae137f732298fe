// Package ir provides the literal value model shared by the command tree and
// the document translator.
//
// This package contains leaf types only. All other internal packages may
// import ir; ir imports nothing internal. Values convert to and from the
// document store's BSON representation so literals compiled from SQL land in
// pipelines and mutation documents with the same type they were resolved with.
//
// Key design constraints:
//   - Value is a sealed interface; exhaustive type switches are safe
//   - Integers are always int64, floats always float64
//   - Times are UTC with millisecond precision, matching BSON datetimes
package ir
