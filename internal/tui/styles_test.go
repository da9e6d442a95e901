package tui

import (
	"strings"
	"testing"
)

func TestGetStateLabel(t *testing.T) {
	tests := []struct {
		state GroupState
		want  string
	}{
		{StatePassed, "✓ ok"},
		{StateFailed, "✗ failed"},
		{StateRunning, "● running"},
		{StateNotRun, "- not run"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := GetStateLabel(tt.state); !strings.Contains(got, tt.want) {
				t.Errorf("GetStateLabel(%v) = %q, want to contain %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
		filled   int
		percent  string
	}{
		{"empty", 0, 20, 0, "0%"},
		{"half", 0.5, 20, 10, "50%"},
		{"full", 1, 20, 20, "100%"},
		{"overflow", 1.5, 20, 20, "150%"},
		{"min width", 0.5, 4, 5, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderProgressBar(tt.progress, tt.width)
			if n := strings.Count(got, "█"); n != tt.filled {
				t.Errorf("filled = %d, want %d", n, tt.filled)
			}
			if !strings.Contains(got, tt.percent) {
				t.Errorf("missing percent %q in %q", tt.percent, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456..." {
		t.Errorf("truncate long = %q", got)
	}
}
