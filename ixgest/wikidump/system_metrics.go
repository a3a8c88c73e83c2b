package wikidump

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/edithist/errors"
)

// memoryPerWorker is a rough ceiling for one worker: a decoded item with its
// previous payload plus a full batch waiting on the sink.
const memoryPerWorker uint64 = 512 << 20

// memoryStats returns total and available memory in bytes
func memoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// workersForMemory caps requested so that every worker fits in available.
// It never returns less than 1.
func workersForMemory(requested int, available uint64) int {
	fit := int(available / memoryPerWorker)
	if fit < 1 {
		fit = 1
	}
	if requested > fit {
		return fit
	}
	return requested
}
