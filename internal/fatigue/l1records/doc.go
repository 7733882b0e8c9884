// Package l1records owns Layer 1 (Records) of the fatigue data model.
//
// Responsibilities: the seven-field record, line parsing with silent
// skipping of malformed rows, and forward-only record streams addressed
// by byte-offset cursors.
// Key types: Record, Cursor, Reader, Writer.
//
// Dependency rule: L1 depends on nothing else in internal/fatigue.
package l1records
