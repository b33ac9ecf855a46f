// Package build holds the version string shared by the
// storage-provider/storage-client command front-ends.
package build

// BuildVersion is the local build version, set by the build system.
const BuildVersion = "0.1.0"

// CurrentCommit is set by the build system via -ldflags; empty in
// unreleased builds.
var CurrentCommit string

// UserVersion is advertised as the libp2p user agent by both command
// front-ends.
func UserVersion() string {
	v := BuildVersion
	if CurrentCommit != "" {
		v += "+git." + CurrentCommit
	}
	return v
}
