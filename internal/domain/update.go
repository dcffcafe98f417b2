package domain

const (
	// VersionNotInstalled is reported when a component has no package metadata.
	VersionNotInstalled = "not installed"

	// VersionUnknown is reported when the latest version could not be resolved.
	VersionUnknown = "unknown"
)

// UpdateInfo is the per-component result of one update check.
type UpdateInfo struct {
	Name           string
	Package        string
	CurrentVersion string
	LatestVersion  string
	HasUpdate      bool

	// TarballURL is set only when HasUpdate is true and a registry reported
	// the latest version.
	TarballURL string

	// Integrity is the registry's SRI string or sha1 shasum for the tarball,
	// empty when the registry did not provide one.
	Integrity string
}

// Installable reports whether the update can be downloaded.
func (u UpdateInfo) Installable() bool {
	return u.HasUpdate && u.TarballURL != ""
}
