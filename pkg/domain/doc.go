// Package domain defines the core domain models for the wallet subsystem.
//
// Domain models are pure value objects without any IO dependencies or
// backend coupling. This package contains:
//
//   - Descriptor: persisted identity and configuration of a wallet
//   - Config: creation-time and open-time configuration documents
//   - Credentials: backend-interpreted access credentials
//   - Record, Value: the stored unit and its freshness metadata
//   - Handle: opaque identifier of an open wallet session
//   - Errors: domain-specific error definitions
package domain
