// panic_recovery.go: panic recovery with stack capture for callbacks and goroutines
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"runtime"
)

// withStackRecover returns a function meant to be deferred. It recovers a
// panic and logs it together with the goroutine stack.
//
//	defer withStackRecover(logger, "component", "event-bus")()
func withStackRecover(logger Logger, args ...any) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered", append(args, "panic", r, "stack", captureStack())...)
		}
	}
}

func captureStack() string {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// SafeGo runs fn in a new goroutine. A panic in fn is logged instead of
// crashing the process.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}
