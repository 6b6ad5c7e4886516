// Package trackergo provides the version information for tracker-go.
package trackergo

// Version is the current version of tracker-go.
const Version = "0.3.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
