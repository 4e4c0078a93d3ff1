// Package wam version query.
package wam

// VersionInfo is the 7-tuple a version-query primitive returns: {major,
// minor, patch, branch, commit id, commit date, commit description}.
type VersionInfo struct {
	Major            int
	Minor            int
	Patch            int
	Branch           string
	CommitID         string
	CommitDate       string
	CommitDescription string
}

// Version is the engine's own semantic version.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// buildBranch, buildCommitID, buildCommitDate, and buildCommitDescription
// are overridden at link time via -ldflags; they default to "unknown" in
// a plain `go build`.
var (
	buildBranch            = "unknown"
	buildCommitID          = "unknown"
	buildCommitDate        = "unknown"
	buildCommitDescription = "unknown"
)

// GetVersionInfo returns the version 7-tuple.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Major:             VersionMajor,
		Minor:             VersionMinor,
		Patch:             VersionPatch,
		Branch:            buildBranch,
		CommitID:          buildCommitID,
		CommitDate:        buildCommitDate,
		CommitDescription: buildCommitDescription,
	}
}
