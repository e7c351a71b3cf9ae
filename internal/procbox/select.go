package procbox

import (
	"log"
	"runtime"
)

// NewRunner selects the strongest available implementation: bwrap on Linux
// hosts that have it, the local fallback everywhere else.
func NewRunner() Runner {
	if runtime.GOOS == "linux" {
		if r := NewBwrapRunner(); r.Available() {
			return r
		}
	}
	log.Println("procbox: bwrap not available, falling back to unisolated local execution")
	return NewLocalRunner()
}
