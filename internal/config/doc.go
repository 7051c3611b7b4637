// Package config defines the walletmesh configuration structure.
//
//   - config.go: configuration sections
//   - default.go: default values
//   - verify.go: validation
package config
