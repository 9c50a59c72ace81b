// Package dataset aggregates normalized records into a deduplicated table and
// flushes snapshots of it to destinations.
//
// A flush is scoped: the destination is opened, the header and every row of
// the current snapshot are written, and the write is committed. Any failure
// aborts the destination so a partially written table is never left behind.
// Flushes overwrite; flushing twice writes the same rows twice, not double.
package dataset
