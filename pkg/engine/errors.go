package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// Controller errors surfaced to Terminate callers.
var (
	ErrProcessNotFound   = errors.New("process not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTerminationFailed = errors.New("termination failed")
)

// classifyTerminateError maps an OS-level refusal onto the controller's
// error taxonomy. The original error stays visible through %w wrapping only
// for the catch-all case; not-found and permission outcomes are sentinels.
func classifyTerminateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		isNoSuchProcess(err):
		return ErrProcessNotFound
	case errors.Is(err, os.ErrPermission), isPermissionDenied(err):
		return ErrPermissionDenied
	default:
		return fmt.Errorf("%w: %v", ErrTerminationFailed, err)
	}
}
