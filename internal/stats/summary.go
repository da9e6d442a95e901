package stats

import (
	"fmt"
	"strings"
	"time"
)

// SummaryConfig holds everything the end-of-run summary reports.
type SummaryConfig struct {
	// RerunCommand prefixes the rerun hint, e.g. "iptest".
	RerunCommand string

	// Groups is the number of groups that were run.
	Groups int

	// Failed lists failed sections in the order they were recorded.
	Failed []string

	// Interrupted lists sections stopped by an interrupt.
	Interrupted []string

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration

	// SysInfo is the pre-rendered system information report.
	SysInfo string

	// Durations, when non-nil and non-empty, adds a timing section.
	Durations *Durations
}

// FormatSummary renders the summary printed after all groups finished:
// a rule, the system report, the status line and, on failure, a hint on
// how to rerun the failed groups.
func FormatSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("_", BannerWidth) + "\n")
	b.WriteString("Test suite completed for system with the following information:\n")
	b.WriteString(cfg.SysInfo)
	if cfg.SysInfo != "" && !strings.HasSuffix(cfg.SysInfo, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if d := cfg.Durations; d != nil && d.Count() > 0 {
		b.WriteString(formatDurations(d))
	}

	took := fmt.Sprintf("Took %.3fs.", cfg.Elapsed.Seconds())
	b.WriteString("Status: ")
	if len(cfg.Interrupted) > 0 {
		fmt.Fprintf(&b, "INTERRUPTED (%s). %s\n", strings.Join(cfg.Interrupted, ", "), took)
		if len(cfg.Failed) == 0 {
			return b.String()
		}
		fmt.Fprintf(&b, "%d out of %d test groups failed before the interrupt (%s).\n",
			len(cfg.Failed), cfg.Groups, strings.Join(cfg.Failed, ", "))
		writeRerunHint(&b, cfg)
		return b.String()
	}
	if len(cfg.Failed) == 0 {
		fmt.Fprintf(&b, "OK (%d test groups). %s\n", cfg.Groups, took)
		return b.String()
	}

	fmt.Fprintf(&b, "ERROR - %d out of %d test groups failed (%s). %s\n",
		len(cfg.Failed), cfg.Groups, strings.Join(cfg.Failed, ", "), took)
	writeRerunHint(&b, cfg)
	return b.String()
}

func writeRerunHint(b *strings.Builder, cfg SummaryConfig) {
	b.WriteString("\nYou may wish to rerun these, with:\n")
	fmt.Fprintf(b, "  %s %s\n\n", cfg.RerunCommand, strings.Join(cfg.Failed, " "))
}

func formatDurations(d *Durations) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group durations: p50 %s  p95 %s  p99 %s  (sum %s)\n",
		FormatSeconds(d.Quantile(0.50)),
		FormatSeconds(d.Quantile(0.95)),
		FormatSeconds(d.Quantile(0.99)),
		FormatSeconds(d.Total()),
	)

	slowest := d.Slowest(3)
	parts := make([]string, len(slowest))
	for i, g := range slowest {
		parts[i] = g.Section + " " + FormatSeconds(g.Duration)
	}
	fmt.Fprintf(&b, "Slowest groups:  %s\n\n", strings.Join(parts, ", "))
	return b.String()
}

// FormatSeconds formats a duration as seconds with millisecond precision.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
