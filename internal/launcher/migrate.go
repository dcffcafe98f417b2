package launcher

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/llonebot/llbot-cli/internal/fsutil"
	"github.com/llonebot/llbot-cli/internal/paths"
)

// MigrateLegacy moves data left by older releases at the install root into
// the component directories.
func MigrateLegacy(layout paths.Layout, out io.Writer, logger *slog.Logger) {
	moves := []struct {
		name    string
		from    string
		to      string
		wantDir bool
	}{
		{"data", filepath.Join(layout.Root, "data"), filepath.Join(layout.LLBotDir, "data"), true},
		{"pmhq_config.json", filepath.Join(layout.Root, "pmhq_config.json"), layout.PMHQConfig, false},
	}

	for _, m := range moves {
		info, err := os.Stat(m.from)
		if err != nil || info.IsDir() != m.wantDir {
			continue
		}

		fmt.Fprintf(out, "Found %s, moving it to %s...\n", m.name, filepath.Dir(m.to))
		if err := os.MkdirAll(filepath.Dir(m.to), 0o755); err != nil {
			logger.Warn("migrate legacy file", "name", m.name, "err", err)
			continue
		}
		if err := fsutil.Move(m.from, m.to); err != nil {
			logger.Warn("migrate legacy file", "name", m.name, "err", err)
			fmt.Fprintf(out, "Warning: moving %s failed: %v\n", m.name, err)
			continue
		}
		fmt.Fprintf(out, "%s moved\n", m.name)
	}
}
