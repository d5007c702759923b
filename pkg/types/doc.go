// Package types defines the measurement record shared by every pgilab
// package, together with the error kinds raised when a record is rejected.
// It is the canonical in-memory representation; the CSV column names used
// on the wire live here too so the codec and the reports agree on them.
package types
