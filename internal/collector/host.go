package collector

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// HostInfo is the static identity reported at registration.
type HostInfo struct {
	Hostname  string
	OSType    string
	OSVersion string
	Arch      string
}

// DetectHost reads the host identity. Fields that cannot be determined fall
// back to runtime values or "unknown".
func DetectHost(ctx context.Context, logger *zap.Logger) HostInfo {
	info := HostInfo{
		OSType: runtime.GOOS,
		Arch:   runtime.GOARCH,
	}

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Warn("host info unavailable", zap.Error(err))
	} else {
		info.Hostname = hi.Hostname
		if hi.Platform != "" {
			info.OSType = hi.Platform
		}
		info.OSVersion = hi.PlatformVersion
		if hi.KernelArch != "" {
			info.Arch = hi.KernelArch
		}
	}

	if info.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			info.Hostname = name
		}
	}
	if info.Hostname == "" {
		info.Hostname = "unknown"
	}
	if info.OSVersion == "" {
		info.OSVersion = "unknown"
	}
	return info
}
