package build

// Populated at build time via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/sidequest-dev/foreman/pkg/build.Version=v1.2.0"
var (
	// Version is the semantic version of the binary.
	Version = "v0.0.0-dev"
	// Commit is the short hash of the commit the binary was built from.
	Commit = "unknown"
	// Date is the UTC timestamp of the build.
	Date = "unknown"
	// BuiltBy identifies the build pipeline (goreleaser, make, ...).
	BuiltBy = "unknown"
)
