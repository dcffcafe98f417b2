package launcher

import (
	"encoding/json"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/fsutil"
	"github.com/llonebot/llbot-cli/internal/paths"
	"github.com/tidwall/jsonc"
)

// Validate checks that every file the worker needs is installed.
func Validate(layout paths.Layout) error {
	required := []struct{ what, path string }{
		{"pmhq", layout.PMHQExe},
		{layout.NodeName, layout.NodeExe},
		{"llbot.js", layout.LLBotScript},
	}
	for _, r := range required {
		if !fsutil.Exists(r.path) {
			return domain.ErrMissingFile{What: r.what, Path: r.path}
		}
	}
	return nil
}

// WorkerArgs builds the pmhq command line. User arguments sit between the
// port and the sub-command so pmhq parses them as its own flags.
func WorkerArgs(port int, userArgs []string, layout paths.Layout) []string {
	p := strconv.Itoa(port)
	args := []string{"--port", p}
	args = append(args, userArgs...)
	return append(args,
		"--sub-cmd-workdir", layout.LLBotDir,
		"--sub-cmd", layout.NodeName,
		"--enable-source-maps", "llbot.js",
		"--",
		"--pmhq-port="+p,
	)
}

// ParseQQPid extracts the QQ client pid from a worker log line such as
// "QQ 进程 PID: 12345".
func ParseQQPid(line string) (int, bool) {
	if !strings.Contains(line, "QQ") {
		return 0, false
	}
	i := strings.LastIndex(line, "PID:")
	if i < 0 {
		return 0, false
	}

	rest := strings.TrimLeftFunc(line[i+len("PID:"):], unicode.IsSpace)
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

type workerConfig struct {
	Headless *bool `json:"headless"`
}

// ShowTerminalQR reports whether login QR codes should be drawn in the
// terminal. Windows shows a GUI unless the worker runs headless.
func ShowTerminalQR(goos string, args []string, configPath string) bool {
	if goos != "windows" {
		return true
	}
	if slices.Contains(args, "--headless") {
		return true
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return false
	}
	var cfg workerConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil || cfg.Headless == nil {
		return false
	}
	return *cfg.Headless
}
