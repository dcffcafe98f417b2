package updater

import (
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// runningTargets are the processes that lock files an update replaces.
var runningTargets = []string{"llbot.exe", "pmhq.exe", "QQ.exe"}

// RunningProcess is a live process that blocks an update.
type RunningProcess struct {
	Name string
	PID  int
}

// listRunning queries tasklist for the running update targets.
func listRunning(ctx context.Context) ([]RunningProcess, error) {
	out, err := exec.CommandContext(ctx, "tasklist", "/FO", "CSV", "/NH").Output()
	if err != nil {
		return nil, fmt.Errorf("tasklist: %w", err)
	}
	return parseTasklist(string(out), runningTargets), nil
}

// parseTasklist picks the targets out of tasklist CSV output.
func parseTasklist(output string, targets []string) []RunningProcess {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var running []RunningProcess
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}
		for _, target := range targets {
			if strings.EqualFold(name, target) {
				running = append(running, RunningProcess{Name: name, PID: pid})
				break
			}
		}
	}
	return running
}

func killPID(ctx context.Context, pid int) error {
	return exec.CommandContext(ctx, "taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
}
