package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "VOYAGE_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the job queue.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads VOYAGE_TEST_MODE after the environment changed.
func RefreshTestMode() {
	detectTestMode()
}
