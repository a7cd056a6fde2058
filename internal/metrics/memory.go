package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"taxray/internal/logging"
)

const bytesPerGB = 1 << 30

// MemorySnapshot captures process and system memory at a point in time.
// Recorded with every model run so the sequential batch's memory ceiling
// is visible in the metrics stream.
type MemorySnapshot struct {
	SystemPercent     float64
	SystemUsedGB      float64
	SystemAvailableGB float64
	ProcessRSSGB      float64
	ProcessVMSGB      float64
}

// CaptureMemory samples current memory usage. Returns nil when platform
// stats are unavailable; metrics never fail a run.
func CaptureMemory() *MemorySnapshot {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logging.Get(logging.CategoryMetrics).Warn("Memory sampling failed: %v", err)
		return nil
	}

	snap := &MemorySnapshot{
		SystemPercent:     vm.UsedPercent,
		SystemUsedGB:      float64(vm.Used) / bytesPerGB,
		SystemAvailableGB: float64(vm.Available) / bytesPerGB,
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			snap.ProcessRSSGB = float64(info.RSS) / bytesPerGB
			snap.ProcessVMSGB = float64(info.VMS) / bytesPerGB
		}
	}

	return snap
}

// fill adds the snapshot's fields to an event data map.
func (m *MemorySnapshot) fill(data map[string]interface{}) {
	data["system_percent"] = m.SystemPercent
	data["system_used_gb"] = m.SystemUsedGB
	data["system_available_gb"] = m.SystemAvailableGB
	data["process_rss_gb"] = m.ProcessRSSGB
	data["process_vms_gb"] = m.ProcessVMSGB
}
