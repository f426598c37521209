//go:build linux

package core

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinLoopThread locks the calling goroutine to its OS thread and pins that
// thread to one CPU (loop index modulo NumCPU) for cache locality.
func pinLoopThread(index int) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(index % runtime.NumCPU())

	// Best effort, the loop runs unpinned if the syscall fails
	_ = unix.SchedSetaffinity(0, &set)
}
