package status

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loupe-re/loupe/internal/cli/helpers"
)

// OutputJSON writes info as JSON.
func OutputJSON(w io.Writer, info *Info) error {
	return (&helpers.JSONFormatter{}).Format(info, w)
}

// OutputTable writes info in human-readable form.
func OutputTable(w io.Writer, info *Info, verbose bool) error {
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("Loupe Environment Status\n")
	p("========================\n\n")

	p("Config:    %s\n", info.ConfigPath)
	p("Version:   loupe %s\n", info.Version)

	spawn := "attach only"
	if info.Spawn {
		spawn = "start on demand"
	}
	p("Engine:    %s (%s)\n", info.Address, spawn)

	switch {
	case info.EnginePath != "":
		p("Binary:    %s\n", info.EnginePath)
	case verbose:
		p("Binary:    not found (%s)\n", info.EnginePathError)
	default:
		p("Binary:    not found\n")
	}
	p("\n")

	if !info.Running {
		p("Status:    not running\n\n")
		if info.Spawn {
			p("The engine will be started by the next command that needs it.\n")
		} else {
			p("Start it with 'loupe-engine serve --listen %s'.\n", info.Address)
		}
		return nil
	}

	health := "unresponsive"
	if info.Alive {
		health = fmt.Sprintf("alive, ping %s", time.Duration(info.LatencyMicros)*time.Microsecond)
	}
	p("Status:    running (%s)\n", health)

	if info.Process == nil {
		p("Process:   unknown (not visible to this user)\n")
		return nil
	}

	proc := info.Process
	p("PID:       %d\n", proc.PID)
	p("Uptime:    %s (started %s)\n",
		formatUptime(time.Duration(proc.UptimeSeconds)*time.Second), humanize.Time(proc.StartedAt))
	p("Memory:    %s RSS (%.1f%% of host)\n", humanize.IBytes(proc.RSSBytes), proc.MemoryPercent)
	if verbose {
		p("CPU:       %.1f%%\n", proc.CPUPercent)
		p("Threads:   %s\n", humanize.Comma(int64(proc.Threads)))
	}
	return nil
}

// formatUptime formats an uptime duration.
// < 1h: Show minutes and seconds (e.g., "15m 30s")
// 1h - 24h: Show hours and minutes (e.g., "5h 20m")
// > 24h: Show days and hours (e.g., "2d 3h")
func formatUptime(d time.Duration) string {
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		if minutes == 0 {
			return fmt.Sprintf("%ds", seconds)
		}
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := int(d.Hours())
	if hours < 24 {
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}

	days := hours / 24
	remainingHours := hours % 24
	return fmt.Sprintf("%dd %dh", days, remainingHours)
}
