// Package store owns the single SQLite database file that backs the field
// client.
//
// The database runs embedded through ncruces/go-sqlite3 with WAL enabled so
// readers never block behind the writer. Every table registers itself with
// Open as a Table; Open then brings the file to the requested schema version:
//
//	stored == target   verify every table exists, recreate any that are missing
//	stored == 0        create every table, then stamp the version
//	stored <  target   upgrade every table from the stored version, then stamp
//	stored >  target   refuse to open (ErrNewerSchema)
//
// Create and upgrade run inside one transaction. A failure rolls the file back
// to where it was and Open returns an error; the caller must treat that as
// fatal. The version lives in PRAGMA user_version.
//
// Table code reaches the database only through a Querier, which both the
// connection and a transaction satisfy, so the same table can take part in a
// multi-table transaction owned by a repository.
//
// Dates are stored as ISO-8601 text with millisecond precision in UTC, for
// example 2019-03-01T10:00:00.000+00:00.
package store
