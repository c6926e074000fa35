package core

// Version identifies the build in every job's "job started" log line.
// Release builds inject it with:
//
//	go build -ldflags "-X mediagen/core.Version=$(git describe --tags --always)" ./cmd/...
var Version = "dev"
