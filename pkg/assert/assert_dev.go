//go:build !release

// Package assert checks internal invariants. Failed assertions panic in development builds and are compiled out of
// release builds.
package assert

import "fmt"

func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
