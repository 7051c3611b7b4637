// Package buildinfo reports the walletmesh build.
//
// Version and Commit can be injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/walletmesh-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Values left unset fall back to the module build information embedded
// by the Go toolchain.
package buildinfo
