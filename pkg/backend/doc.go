// Package backend defines the capability contract every wallet storage
// backend implements.
//
// Built-in backends implement Backend and Session directly. Third-party
// plugins supply a Funcs callback table, which adapts itself to the same
// contract and is validated entry point by entry point on registration.
//
// A backend that needs to restrict how sessions share a wallet implements
// Policy. Backends without a Policy allow concurrent sessions and refuse to
// delete a wallet while it is open.
package backend
