package metrics

import (
	"sync"
	"time"
)

// componentHealth tracks the last reported state of one process component,
// such as the worker claim loop or the scheduler.
type componentHealth struct {
	healthy bool
	message string
	updated time.Time
}

type healthRegistry struct {
	mu         sync.RWMutex
	components map[string]componentHealth
	startTime  time.Time
	version    string
}

var registry = &healthRegistry{
	components: make(map[string]componentHealth),
	startTime:  time.Now(),
}

// SetVersion records the build version reported by health endpoints.
func SetVersion(version string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.version = version
}

// Version returns the recorded build version, if any.
func Version() string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.version
}

// UpdateComponent records the health of a named component. Components are
// process-local: each worker or API process reports only its own loops.
func UpdateComponent(name string, healthy bool, message string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.components[name] = componentHealth{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// Components returns a name to status snapshot. Healthy components read
// "ok"; unhealthy ones carry their last reported message.
func Components() map[string]string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	out := make(map[string]string, len(registry.components))
	for name, comp := range registry.components {
		if comp.healthy {
			out[name] = "ok"
		} else if comp.message != "" {
			out[name] = comp.message
		} else {
			out[name] = "unhealthy"
		}
	}
	return out
}

// Healthy reports whether every registered component is healthy. A process
// with no registered components is healthy.
func Healthy() bool {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, comp := range registry.components {
		if !comp.healthy {
			return false
		}
	}
	return true
}

// Uptime returns how long the process has been up.
func Uptime() time.Duration {
	return time.Since(registry.startTime)
}

// resetHealth clears the registry. Tests only.
func resetHealth() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.components = make(map[string]componentHealth)
	registry.version = ""
}
