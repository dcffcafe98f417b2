package updater

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/paths"
)

// Component is one independently versioned piece of an installation.
type Component struct {
	Name    string
	Package string

	// Dir is the install directory replaced by an update. Empty for the
	// launcher itself.
	Dir string

	// Manifest is the package.json carrying the installed version. Empty
	// for the launcher itself.
	Manifest string

	Self bool
}

// PlatformNames maps GOOS and GOARCH to the names used in package ids.
func PlatformNames(goos, goarch string) (string, string) {
	osName, archName := goos, goarch
	if goos == "windows" {
		osName = "win"
	}
	if goarch == "amd64" {
		archName = "x64"
	}
	return osName, archName
}

// Components lists the tracked components in update order. The launcher
// itself comes first in the table but is always installed last.
func Components(layout paths.Layout, goos, goarch string) []Component {
	osName, archName := PlatformNames(goos, goarch)
	return []Component{
		{
			Name:    "LLBot CLI",
			Package: fmt.Sprintf("llbot-cli-%s-%s", osName, archName),
			Self:    true,
		},
		{
			Name:     "PMHQ",
			Package:  fmt.Sprintf("pmhq-dist-%s-%s", osName, archName),
			Dir:      layout.PMHQDir,
			Manifest: layout.PMHQPackage,
		},
		{
			Name:     "LLBot",
			Package:  "llonebot-dist",
			Dir:      layout.LLBotDir,
			Manifest: layout.LLBotPackage,
		},
	}
}

type manifest struct {
	Version string `json:"version"`
}

// LocalVersion reads the version field of a package.json. A missing or
// unreadable manifest reports domain.VersionNotInstalled.
func LocalVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.VersionNotInstalled
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil || m.Version == "" {
		return domain.VersionNotInstalled
	}
	return m.Version
}
