package host

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Stats describes the running engine process.
type Stats struct {
	PID        int32
	Spawned    bool
	RSSBytes   uint64
	VMSBytes   uint64
	CPUPercent float64
	Threads    int32
	StartedAt  time.Time
	// MemoryPercent is RSS as a share of host memory.
	MemoryPercent float64
}

// Uptime returns how long the process has been running.
func (s Stats) Uptime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// Stats samples resource usage of the engine process. For an engine the
// supervisor did not start, the process is found by its listening socket.
func (s *Supervisor) Stats(ctx context.Context) (*Stats, error) {
	pid := int32(s.PID())
	spawned := pid != 0 && !isClosed(s.Exited())
	if !spawned {
		found, err := listenerPID(ctx, s.cfg.Address)
		if err != nil {
			return nil, err
		}
		pid = found
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect engine process %d: %w", pid, err)
	}

	stats := &Stats{PID: pid, Spawned: spawned}

	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats.RSSBytes = mi.RSS
		stats.VMSBytes = mi.VMS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = n
	}
	if ms, err := proc.CreateTimeWithContext(ctx); err == nil {
		stats.StartedAt = time.UnixMilli(ms)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm.Total > 0 {
		stats.MemoryPercent = float64(stats.RSSBytes) / float64(vm.Total) * 100
	}

	return stats, nil
}

// listenerPID returns the pid of the process listening on address.
func listenerPID(ctx context.Context, address string) (int32, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("invalid engine address %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid engine port %q: %w", portStr, err)
	}

	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("failed to list tcp sockets: %w", err)
	}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid == 0 {
			continue
		}
		if matchesHost(c.Laddr.IP, host) {
			return c.Pid, nil
		}
	}
	return 0, fmt.Errorf("no process found listening on %s", address)
}

func matchesHost(ip, host string) bool {
	switch ip {
	case host, "0.0.0.0", "::", "*":
		return true
	}
	return host == "localhost" && (ip == "127.0.0.1" || ip == "::1")
}
