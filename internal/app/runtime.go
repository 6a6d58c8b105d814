package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TINDAHAN_TEST_MODE keeps the binary from touching postgres, redis or the
// network; the integration harness sets it before exec.
const testModeEnv = "TINDAHAN_TEST_MODE"

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool {
	return testMode.Load()
}

// RefreshTestMode re-reads the environment flag. Accepts any value
// strconv.ParseBool does.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(on)
}
