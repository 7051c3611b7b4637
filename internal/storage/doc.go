// Package storage provides the embedded key-value engine shared by the
// wallet catalog and the native wallet backend.
//
// Subpackages:
//
//   - registry: wallet type name to backend bindings
//   - handle: opaque handle to open session table
//   - catalog: persisted wallet descriptors and name reservations
//   - native: the "default" wallet type, one Badger store per wallet
//   - sqlite: the "sqlite" wallet type, one database file per wallet
//   - memory: the "inmem" wallet type, registered as a callback table
package storage
