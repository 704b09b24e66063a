package version

// Version is the current version of ShareMesh.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/sharemesh/sharemesh/internal/version.Version=v1.0.0'"
var Version = "dev"
