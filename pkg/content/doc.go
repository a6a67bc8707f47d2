// Package content holds the table of discovered posts.
//
// A Store keeps every post in memory keyed by ID and in insertion order.
// Changes stay in memory until Flush writes the whole table to a Snapshot:
// content.csv (CSVSnapshot) or content.db (SQLiteSnapshot). Comments are
// stored as a JSON array so bodies containing newlines round-trip.
package content
