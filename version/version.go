// Package version holds the release tag in a single place.  The
// main driver prints it for "-version", and keeping it in its own
// package means nothing else has to import main to find it.
package version

import "fmt"

var (
	// version is populated with our release tag at build time, via
	// the linker.
	version = "unreleased"
)

// GetVersionBanner returns a printable banner showing our name,
// version, and homepage link.
func GetVersionBanner() string {

	str := fmt.Sprintf("zcpm %s\n%s\n", version, "https://github.com/zcpmgo/zcpm/")
	return str
}

// GetVersionString returns our version number as a string.
func GetVersionString() string {
	return version
}
