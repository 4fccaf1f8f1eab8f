package app

import (
	"os"
	"sync/atomic"
)

// testModeEnv makes binaries exit before opening connections when set to "1".
const testModeEnv = "AUTHZ_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the binaries should skip runtime side effects.
// The environment is read on first use.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads AUTHZ_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	v := os.Getenv(testModeEnv) == "1"
	testMode.Store(&v)
	return v
}
