// Package store defines the exhibition data model, the Repository contract
// and the record preparation shared by every implementation. Implementations
// live under internal/storage; this package must not import database drivers
// or concrete clients.
package store
