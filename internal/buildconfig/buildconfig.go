// Package buildconfig carries the release identity stamped at link time via
// -ldflags "-X". Unstamped binaries report a dev build.
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

// Version reports the release version of the running binary.
func Version() string {
	return version
}

// Commit reports the git commit the binary was built from.
func Commit() string {
	return commit
}

// VersionInfo bundles the identity fields for export surfaces such as the
// version command and the metrics endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
