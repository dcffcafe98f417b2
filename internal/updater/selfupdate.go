package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/paths"
)

// selfUpdateDir is the scratch directory for the new launcher binary.
const selfUpdateDir = "_cli_update_temp"

type helperData struct {
	PID     int
	Current string
	Backup  string
	NewExe  string
	TempDir string
}

var funcs = template.FuncMap{"sh": shellQuote}

// The helper waits for the launcher to exit before touching its binary and
// puts the backup back when the copy fails.
var unixHelper = template.Must(template.New("update.sh").Funcs(funcs).Parse(`#!/bin/sh
pid={{.PID}}
current={{sh .Current}}
backup={{sh .Backup}}
new={{sh .NewExe}}
temp={{sh .TempDir}}

while kill -0 "$pid" 2>/dev/null; do
	sleep 1
done

rm -f "$backup"
mv -f "$current" "$backup" || exit 1
if ! cp -f "$new" "$current"; then
	mv -f "$backup" "$current"
	exit 1
fi
chmod 755 "$current"
rm -rf "$temp"
`))

var windowsHelper = template.Must(template.New("update.bat").Parse(`@echo off
chcp 65001 >nul
echo Updating LLBot CLI, please wait...

:wait
timeout /t 1 /nobreak >nul
tasklist /FI "PID eq {{.PID}}" 2>NUL | find /I "{{.PID}}" >NUL
if not errorlevel 1 goto wait

echo Backing up the old version...
if exist "{{.Backup}}" del /f /q "{{.Backup}}"
move /y "{{.Current}}" "{{.Backup}}"

echo Installing the new version...
copy /y "{{.NewExe}}" "{{.Current}}"

if errorlevel 1 (
    echo Update failed, restoring...
    move /y "{{.Backup}}" "{{.Current}}"
    pause
    exit /b 1
)

echo Update complete!
timeout /t 2 /nobreak >nul

start "" "{{.Current}}"
start /b "" cmd /c "timeout /t 3 /nobreak >nul & rmdir /s /q "{{.TempDir}}" 2>nul"
exit
`))

// renderHelper produces the platform helper script and its file name.
func renderHelper(goos string, data helperData) (string, []byte, error) {
	tmpl, name := unixHelper, "_update.sh"
	if goos == "windows" {
		tmpl, name = windowsHelper, "_update.bat"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", nil, fmt.Errorf("render %s: %w", name, err)
	}
	out := buf.Bytes()
	if goos == "windows" {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	return name, out, nil
}

// selfUpdate stages the new launcher and hands the swap to a detached
// helper. On success it returns domain.ErrHandoff and the caller must exit.
func (u *Updater) selfUpdate(ctx context.Context, info domain.UpdateInfo) error {
	if u.exePath == "" {
		return domain.ErrInstall{Op: "self-update", Err: errors.New("cannot locate the running executable")}
	}

	tempDir := filepath.Join(u.layout.Root, selfUpdateDir)
	if err := u.installer.Install(ctx, info.TarballURL, info.Integrity, tempDir); err != nil {
		return err
	}

	newExe, err := findExecutable(tempDir, u.goos)
	if err != nil {
		return domain.ErrInstall{Op: "self-update", Err: err}
	}

	name, script, err := renderHelper(u.goos, helperData{
		PID:     u.pid,
		Current: u.exePath,
		Backup:  u.exePath + ".bak",
		NewExe:  newExe,
		TempDir: tempDir,
	})
	if err != nil {
		return domain.ErrInstall{Op: "self-update", Err: err}
	}

	scriptPath := filepath.Join(tempDir, name)
	if err := os.WriteFile(scriptPath, script, 0o755); err != nil {
		return domain.ErrInstall{Op: "self-update", Err: err}
	}

	fmt.Fprintln(u.out, "Starting the update helper, the launcher will now exit...")
	if err := u.startHelper(scriptPath); err != nil {
		return domain.ErrInstall{Op: "start helper", Err: err}
	}
	u.logger.Info("self-update handed off", "script", scriptPath)
	return domain.ErrHandoff
}

// findExecutable locates the launcher binary in an unpacked update.
func findExecutable(dir, goos string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	exact := paths.ExeName("llbot", goos)
	var candidate string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		switch name := entry.Name(); {
		case name == exact:
			return filepath.Join(dir, name), nil
		case candidate == "" && strings.HasPrefix(name, "llbot"):
			candidate = filepath.Join(dir, name)
		}
	}
	if candidate == "" {
		return "", errors.New("no launcher executable in the update package")
	}
	return candidate, nil
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", "'\"'\"'") + "'"
}
