// Package testing switches the process into test mode when imported, so
// packages that read app.InTestMode see it set before their tests run.
package testing

import (
	"os"
	"sync"
)

// TestModeEnv mirrors app.TestModeEnv; importing internal/app here would
// create a cycle for packages app depends on.
const TestModeEnv = "TALLYBOOKS_TEST_MODE"

var once sync.Once

// Enable sets the test mode environment once per process.
func Enable() {
	once.Do(func() {
		_ = os.Setenv(TestModeEnv, "1")
	})
}

func init() {
	Enable()
}
