package obs

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// MemoryLimit returns the container memory limit in bytes, trying cgroup v2
// (memory.max) then falling back to cgroup v1 (memory.limit_in_bytes). A
// return of 0 means no limit was detected (bare metal, VM, or unlimited
// container).
func MemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}

// SampleRSS reads this process's resident set size via gopsutil, reports it
// to the ProcessRSSBytes gauge, and returns it.
func SampleRSS() (int64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	ProcessRSSBytes.Set(float64(mem.RSS))
	return int64(mem.RSS), nil
}
