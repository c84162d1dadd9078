// Package normalize provides the pure text helpers shared by the crawl
// pipeline: identity keys for titles and artists, whitespace cleanup,
// date-range parsing and artist list cleanup. Nothing here performs I/O and
// nothing here returns an error; unparseable input yields empty values.
package normalize
