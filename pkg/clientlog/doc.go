// Package clientlog defines the records browser clients post to /log and
// the storage interface that keeps them.
//
// Every entry is also written to the server log. Storage adds a queryable,
// bounded history: the storage subpackage provides memory and SQLite
// backends, and the retention subpackage prunes old entries on a schedule.
package clientlog
