// Package collector samples host resource counters through gopsutil and maps
// them to the MetricsSnapshot wire model.
package collector

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/pkg/models"
)

// DefaultCPUSample is how long CPU usage is measured per snapshot.
const DefaultCPUSample = 200 * time.Millisecond

// Collector gathers system metrics from the host.
type Collector interface {
	Collect(ctx context.Context) (*models.MetricsSnapshot, error)
}

// SystemCollector reads live counters from the local host. CPU and memory
// failures fail the snapshot; disk and network failures zero their fields.
type SystemCollector struct {
	logger    *zap.Logger
	rootPath  string
	cpuSample time.Duration
}

// Compile-time guard.
var _ Collector = (*SystemCollector)(nil)

// NewCollector returns a collector for the local host.
func NewCollector(logger *zap.Logger) *SystemCollector {
	return &SystemCollector{
		logger:    logger,
		rootPath:  RootPath(),
		cpuSample: DefaultCPUSample,
	}
}

// RootPath returns the filesystem whose usage is reported.
func RootPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// Collect returns a fresh snapshot. It blocks for the CPU sample window.
func (c *SystemCollector) Collect(ctx context.Context) (*models.MetricsSnapshot, error) {
	s := &models.MetricsSnapshot{}

	if err := c.collectCPU(ctx, s); err != nil {
		return nil, err
	}
	if err := c.collectMemory(ctx, s); err != nil {
		return nil, err
	}
	c.collectDisk(ctx, s)
	c.collectNetwork(ctx, s)

	return s, nil
}

func (c *SystemCollector) collectCPU(ctx context.Context, s *models.MetricsSnapshot) error {
	percents, err := cpu.PercentWithContext(ctx, c.cpuSample, false)
	if err != nil {
		return fmt.Errorf("cpu usage: %w", err)
	}
	if len(percents) > 0 {
		s.CPUUsage = percents[0]
	}

	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil || count == 0 {
		count = runtime.NumCPU()
	}
	s.CPUCount = count

	// Load average is a Unix concept; Windows reports it as absent.
	if runtime.GOOS != "windows" {
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			c.logger.Debug("load average unavailable", zap.Error(err))
		} else {
			s.LoadAverage1m = &avg.Load1
			s.LoadAverage5m = &avg.Load5
			s.LoadAverage15m = &avg.Load15
		}
	}
	return nil
}

func (c *SystemCollector) collectMemory(ctx context.Context, s *models.MetricsSnapshot) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	s.MemoryTotal = int64(vm.Total)
	s.MemoryUsed = int64(vm.Used)
	s.MemoryAvailable = int64(vm.Available)
	s.MemoryUsage = percent(vm.Used, vm.Total)
	return nil
}

func (c *SystemCollector) collectDisk(ctx context.Context, s *models.MetricsSnapshot) {
	usage, err := disk.UsageWithContext(ctx, c.rootPath)
	if err != nil {
		c.logger.Warn("disk usage unavailable", zap.String("path", c.rootPath), zap.Error(err))
	} else {
		used := saturatingSub(usage.Total, usage.Free)
		s.DiskTotal = int64(usage.Total)
		s.DiskUsed = int64(used)
		s.DiskUsage = percent(used, usage.Total)
	}

	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		c.logger.Debug("disk I/O counters unavailable", zap.Error(err))
		return
	}
	read, written := sumDiskIO(counters, runtime.GOOS == "linux")
	s.DiskReadBytes = int64(read)
	s.DiskWriteBytes = int64(written)
}

func (c *SystemCollector) collectNetwork(ctx context.Context, s *models.MetricsSnapshot) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		c.logger.Warn("network counters unavailable", zap.Error(err))
		return
	}
	var in, out uint64
	for _, nic := range counters {
		in += nic.BytesRecv
		out += nic.BytesSent
	}
	s.NetworkIn = int64(in)
	s.NetworkOut = int64(out)
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
