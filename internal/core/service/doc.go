// Package service provides the wallet lifecycle manager.
//
// WalletService enforces the create, open, close and delete discipline over
// registered storage types and routes record operations through wallet
// handles:
//
//   - wallet.go: WalletService construction, type registration and queries
//   - lifecycle.go: create, delete, open and close
//   - records.go: record and sequence number operations
//
// Every method is safe for concurrent use. No lock is held while a backend
// call is in progress.
package service
