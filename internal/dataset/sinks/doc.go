// Package sinks provides dataset destinations: local CSV files, SQLite and
// Postgres tables, GCS objects and MongoDB collections.
package sinks
