package worker

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// hookHolder gives atomic.Value a consistent concrete type.
type hookHolder struct {
	console Console
}

var (
	hookOnce  sync.Once
	hookValue atomic.Value // hookHolder
)

// InstallPanicHook installs the process-wide panic console. Panics
// recovered on the host's request and background paths are formatted and
// emitted there instead of terminating silently. One-shot: the first call
// wins and repeated installation is a no-op. Intended to run once at worker
// instance startup.
func InstallPanicHook(console Console) {
	if console == nil {
		return
	}
	hookOnce.Do(func() {
		hookValue.Store(hookHolder{console: console})
	})
}

// setPanicHook bypasses the once guard. Test use only.
func setPanicHook(console Console) {
	hookValue.Store(hookHolder{console: console})
}

// panicConsole returns the installed hook console, if any.
func panicConsole() (Console, bool) {
	if holder, ok := hookValue.Load().(hookHolder); ok && holder.console != nil {
		return holder.console, true
	}
	return nil, false
}

// reportPanic emits exactly one diagnostic line for a recovered panic,
// through the installed hook or through fallback when none is installed.
func reportPanic(r interface{}, fallback Console) {
	console, ok := panicConsole()
	if !ok {
		console = fallback
	}
	if console == nil {
		return
	}
	console.Log(fmt.Sprintf("panic: %v\n%s", r, debug.Stack()))
}
