package asyncloader

import "sync"

// =============================================================================
// Global Runtime Helper (Singleton)
// =============================================================================

var (
	globalRuntime *Runtime
	globalMu      sync.Mutex
)

// InitGlobalRuntime opens the global runtime with the given number of
// workers. Later calls are no-ops until ShutdownGlobalRuntime.
func InitGlobalRuntime(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		return // Already initialized
	}

	globalRuntime, _ = Open(Options{Name: "global", Workers: workers})
}

// GetGlobalRuntime returns the global runtime.
// It panics if InitGlobalRuntime has not been called.
func GetGlobalRuntime() *Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime == nil {
		panic("global runtime not initialized. Call InitGlobalRuntime() first.")
	}
	return globalRuntime
}

// ShutdownGlobalRuntime closes the global runtime. It must run on the owner.
func ShutdownGlobalRuntime() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime == nil {
		return nil
	}
	err := globalRuntime.Close()
	globalRuntime = nil
	return err
}
