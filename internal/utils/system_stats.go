package utils

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

var startedAt = time.Now()

// SystemStats enthält Host- und Prozesskennzahlen für /api/status
type SystemStats struct {
	NumCPU     int     `json:"num_cpu"`
	GoRoutines int     `json:"go_routines"`
	CPUUsage   float64 `json:"cpu_usage"`

	HostMemoryPercent float64 `json:"host_memory_percent"`
	HostMemoryTotal   uint64  `json:"host_memory_total"`

	// Heap der Go-Laufzeit und Resident Set des Prozesses (Modellgewichte, Kaskaden)
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapHuman  string `json:"heap_alloc_human"`
	ProcessRSS uint64 `json:"process_rss"`
	RSSHuman   string `json:"process_rss_human"`

	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// cpuSampler misst die CPU-Auslastung und hält den Wert für maxAge vor,
// damit häufige Status-Abfragen nicht jedes Mal ein Messfenster abwarten
type cpuSampler struct {
	mu      sync.Mutex
	at      time.Time
	value   float64
	maxAge  time.Duration
	window  time.Duration
	measure func(time.Duration, bool) ([]float64, error)
}

var sampler = &cpuSampler{
	maxAge:  500 * time.Millisecond,
	window:  200 * time.Millisecond,
	measure: cpu.Percent,
}

func (s *cpuSampler) usage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.at.IsZero() && time.Since(s.at) < s.maxAge {
		return s.value
	}

	percentages, err := s.measure(s.window, false)
	if err != nil {
		log.Warnf("Fehler bei CPU-Auslastungsmessung: %v", err)
		return 0
	}
	s.value = 0
	if len(percentages) > 0 {
		s.value = percentages[0]
	}
	s.at = time.Now()
	return s.value
}

// GetCPUUsage liefert die gesamte CPU-Auslastung des Hosts in Prozent
func GetCPUUsage() float64 {
	return sampler.usage()
}

// GetSystemStats erfasst aktuelle Systemstatistiken
func GetSystemStats() *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:     runtime.NumCPU(),
		GoRoutines: runtime.NumGoroutine(),
		CPUUsage:   GetCPUUsage(),
		HeapAlloc:  memStats.HeapAlloc,
		HeapHuman:  FormatBytes(memStats.HeapAlloc),
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
		Timestamp:  time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemoryPercent = vm.UsedPercent
		stats.HostMemoryTotal = vm.Total
	} else {
		log.Debugf("Speicherstatistik nicht verfügbar: %v", err)
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			stats.ProcessRSS = info.RSS
			stats.RSSHuman = FormatBytes(info.RSS)
		}
	}
	return stats
}
