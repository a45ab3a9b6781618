// Package version holds build metadata injected via ldflags.
package version

import "runtime"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the build metadata as served on /version and logged at startup.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

// String renders the metadata on one line, e.g. for -version output.
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", built " + i.Date + ", " + i.GoVersion + ")"
}
