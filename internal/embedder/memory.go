package embedder

import (
	"context"

	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryMonitor reports system memory usage as a percentage of total.
type MemoryMonitor interface {
	UsedPercent(ctx context.Context) (float64, error)
}

type systemMemory struct{}

// SystemMemory reads real memory usage from the host.
func SystemMemory() MemoryMonitor {
	return systemMemory{}
}

func (systemMemory) UsedPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
