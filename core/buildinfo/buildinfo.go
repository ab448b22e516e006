// Package buildinfo carries the version identity stamped into the binary.
//
// Release builds overwrite the defaults with -ldflags, e.g.:
//
//	-X 'github.com/aprizal/myxl-bot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/aprizal/myxl-bot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/aprizal/myxl-bot/core/buildinfo.Date=2026-08-30T12:00:00Z'
package buildinfo

var (
	// Version is the tag of the build; "dev" for local builds.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = "local"
	// Date is the RFC3339 build timestamp, empty when not stamped.
	Date = ""
)
