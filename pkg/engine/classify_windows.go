//go:build windows

package engine

// Errno mapping is Unix-specific; on Windows the shared checks in
// classifyTerminateError (os.ErrPermission, os.ErrProcessDone) are enough.

func isNoSuchProcess(err error) bool { return false }

func isPermissionDenied(err error) bool { return false }
