// Package memory provides the "inmem" wallet type.
//
// Unlike the built-in backends it is exposed only as a backend.Funcs
// callback table, the way an external plugin would be, and keeps count of
// every value and search it hands out so tests can verify that callers
// release them.
package memory
