package workpool

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
)

// HostConcurrency returns the number of logical CPUs of the host.
func HostConcurrency() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}

	return n
}
