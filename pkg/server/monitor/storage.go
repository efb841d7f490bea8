package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
)

const usageCacheFor = 10 * time.Second

// StorageMonitor reports disk usage of the data directory. Directory walks
// are cached for a short while.
type StorageMonitor struct {
	dataDir  string
	maxBytes int64
	clock    clock.Clock

	mu        sync.Mutex
	cached    int64
	lastCheck time.Time
}

// NewStorageMonitor creates a monitor for dataDir with a soft limit.
func NewStorageMonitor(dataDir string, maxBytes int64, clk clock.Clock) *StorageMonitor {
	return &StorageMonitor{dataDir: dataDir, maxBytes: maxBytes, clock: clk}
}

// Usage returns the bytes allocated under the data directory.
func (sm *StorageMonitor) Usage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.clock.Now()
	if !sm.lastCheck.IsZero() && now.Sub(sm.lastCheck) < usageCacheFor {
		return sm.cached, nil
	}

	usage, err := dirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cached = usage
	sm.lastCheck = now
	return usage, nil
}

// Limit returns the configured limit in bytes.
func (sm *StorageMonitor) Limit() int64 { return sm.maxBytes }

// StorageReport is the /api/storage disk section.
type StorageReport struct {
	DataDir     string  `json:"data_dir"`
	UsedBytes   int64   `json:"used_bytes"`
	LimitBytes  int64   `json:"limit_bytes"`
	UsedPercent float64 `json:"used_percent"`
	OverLimit   bool    `json:"over_limit"`
}

// Report returns usage against the limit.
func (sm *StorageMonitor) Report() (StorageReport, error) {
	used, err := sm.Usage()
	if err != nil {
		return StorageReport{}, err
	}
	r := StorageReport{DataDir: sm.dataDir, UsedBytes: used, LimitBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		r.UsedPercent = float64(used) / float64(sm.maxBytes) * 100
		r.OverLimit = used > sm.maxBytes
	}
	return r, nil
}

// dirSize sums allocated file sizes under path.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		allocated, err := allocatedSize(filePath, info)
		if err != nil {
			allocated = info.Size()
		}
		size += allocated
		return nil
	})
	return size, err
}
