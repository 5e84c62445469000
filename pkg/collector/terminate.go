package collector

import (
	"github.com/shirou/gopsutil/v4/process"
)

var openProcess = process.NewProcess

// Terminate asks the OS to deliver a graceful termination (SIGTERM on Unix)
// to pid. The raw OS error is returned so callers can classify it.
func Terminate(pid int32) error {
	p, err := openProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

// StartTime reports the creation time of a live pid in milliseconds since
// the epoch, used to confirm a pid still belongs to the process a caller
// saw in a snapshot.
func StartTime(pid int32) (int64, error) {
	p, err := openProcess(pid)
	if err != nil {
		return 0, err
	}
	return p.CreateTime()
}
