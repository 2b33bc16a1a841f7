package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type ResourceUsage struct {
	CPUPercent    float64
	MemoryUsedMB  float64
	MemoryTotalMB float64
	MemoryPercent float64
	NumGoroutines int
}

// StartMonitoring logs the hub process's resource usage on an interval.
func StartMonitoring(interval time.Duration) {
	go func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Printf("[monitoring] Error getting process: %v", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := getResourceUsage(proc)
			if err != nil {
				log.Printf("[monitoring] Error getting resource usage: %v", err)
				continue
			}

			log.Printf("[monitoring] CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Goroutines: %d",
				usage.CPUPercent,
				usage.MemoryUsedMB,
				usage.MemoryTotalMB,
				usage.MemoryPercent,
				usage.NumGoroutines)
		}
	}()
}

func getResourceUsage(proc *process.Process) (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %v", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %v", err)
	}
	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %v", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}
