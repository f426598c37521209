//go:build !linux

package core

import (
	"runtime"
)

// pinLoopThread locks the calling goroutine to its OS thread. CPU pinning is
// only implemented on Linux.
func pinLoopThread(index int) {
	runtime.LockOSThread()
}
