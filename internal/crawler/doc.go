// Package crawler holds the domain types and interfaces shared by the
// exhibition crawl pipeline: condensed page bundles, listing candidates,
// detail records, merged exhibitions and the fetch error taxonomy.
package crawler
