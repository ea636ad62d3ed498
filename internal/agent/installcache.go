package agent

import (
	"fmt"
	"os/exec"
	"sync"
)

// installCache records tools already verified installed in the current
// invocation so repeated checks do not re-probe PATH.
var installCache = struct {
	mu   sync.Mutex
	seen map[string]bool
}{seen: map[string]bool{}}

// EnsureInstalled verifies that an external tool is available on PATH,
// caching positive results process-wide.
func EnsureInstalled(name string) error {
	installCache.mu.Lock()
	if installCache.seen[name] {
		installCache.mu.Unlock()
		return nil
	}
	installCache.mu.Unlock()

	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("tool %q is not installed or not on PATH", name)
	}

	installCache.mu.Lock()
	installCache.seen[name] = true
	installCache.mu.Unlock()
	return nil
}
