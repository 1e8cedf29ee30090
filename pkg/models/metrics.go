package models

// MetricsSnapshot is a single point-in-time read of host resource counters.
// Byte counters for disk I/O and network are cumulative since boot.
type MetricsSnapshot struct {
	// CPU
	CPUUsage       float64  `json:"cpu_usage" yaml:"cpu_usage"`
	CPUCount       int      `json:"cpu_count" yaml:"cpu_count"`
	LoadAverage1m  *float64 `json:"load_average_1m" yaml:"load_average_1m"`
	LoadAverage5m  *float64 `json:"load_average_5m" yaml:"load_average_5m"`
	LoadAverage15m *float64 `json:"load_average_15m" yaml:"load_average_15m"`

	// Memory
	MemoryUsage     float64 `json:"memory_usage" yaml:"memory_usage"`
	MemoryTotal     int64   `json:"memory_total" yaml:"memory_total"`
	MemoryUsed      int64   `json:"memory_used" yaml:"memory_used"`
	MemoryAvailable int64   `json:"memory_available" yaml:"memory_available"`

	// Disk
	DiskUsage      float64 `json:"disk_usage" yaml:"disk_usage"`
	DiskTotal      int64   `json:"disk_total" yaml:"disk_total"`
	DiskUsed       int64   `json:"disk_used" yaml:"disk_used"`
	DiskReadBytes  int64   `json:"disk_read_bytes" yaml:"disk_read_bytes"`
	DiskWriteBytes int64   `json:"disk_write_bytes" yaml:"disk_write_bytes"`

	// Network
	NetworkIn  int64 `json:"network_in" yaml:"network_in"`
	NetworkOut int64 `json:"network_out" yaml:"network_out"`
}
