// Package version carries build information set through -ldflags
package version

var (
	// Version is written into published manifests
	Version = "0.1"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
)

// String returns the version with the commit when known
func String() string {
	if GitSHA == "" || GitSHA == "unknown" {
		return Version
	}
	return Version + "+" + GitSHA
}
