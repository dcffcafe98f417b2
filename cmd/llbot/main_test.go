package main

import (
	"slices"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		update  bool
		yes     bool
		forward bool
		worker  []string
	}{
		{"plain", []string{"--headless", "-q", "123"}, false, false, false, []string{"--headless", "-q", "123"}},
		{"update", []string{"--update"}, true, false, false, []string{}},
		{"update yes", []string{"--yes", "--update"}, true, true, false, []string{}},
		{"short flag forwarded", []string{"--update", "-y"}, true, false, false, []string{"-y"}},
		{"help", []string{"--help"}, false, false, true, []string{"--help"}},
		{"version with args", []string{"--foo", "--version"}, false, false, true, []string{"--foo", "--version"}},
		{"short help", []string{"-h"}, false, false, true, []string{"-h"}},
		{"empty", nil, false, false, false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitArgs(tt.args)
			if got.update != tt.update || got.assumeYes != tt.yes || got.forwardRaw != tt.forward {
				t.Fatalf("splitArgs(%q) = %+v", tt.args, got)
			}
			if !slices.Equal(got.worker, tt.worker) {
				t.Fatalf("worker args = %q, want %q", got.worker, tt.worker)
			}
		})
	}
}

func TestRootCommandKeepsUnknownFlags(t *testing.T) {
	cmd := newRootCmd()
	if !cmd.DisableFlagParsing {
		t.Fatal("flag parsing must stay disabled so pmhq flags pass through")
	}
	if err := cmd.Args(cmd, []string{"--anything", "-x"}); err != nil {
		t.Fatalf("Args rejected pass-through flags: %v", err)
	}
}

func TestExitCodeError(t *testing.T) {
	if got := exitCode(7).Error(); got != "exit status 7" {
		t.Fatalf("Error() = %q", got)
	}
}
