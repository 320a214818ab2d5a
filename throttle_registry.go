package kurirgo

import "sync"

// ThrottleKeyFunc derives the pacing key for a request.
type ThrottleKeyFunc func(*Request) string

// ThrottleRegistry routes each request to a per-key throttle, falling
// back to a shared default for keys without their own. It lets one
// client pace different targets at different rates.
type ThrottleRegistry struct {
	keyFunc  ThrottleKeyFunc
	fallback *Throttle

	mu        sync.RWMutex
	throttles map[string]*Throttle
}

// NewThrottleRegistry creates a registry with the given key function and
// fallback throttle. Register per-key throttles with Register.
func NewThrottleRegistry(keyFunc ThrottleKeyFunc, fallback *Throttle) *ThrottleRegistry {
	return &ThrottleRegistry{
		keyFunc:   keyFunc,
		fallback:  fallback,
		throttles: make(map[string]*Throttle),
	}
}

// Register adds a throttle for the given key.
func (r *ThrottleRegistry) Register(key string, throttle *Throttle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles[key] = throttle
}

// ThrottleFor returns the throttle pacing req and the key it resolved
// to. Keys without a registered throttle use the fallback under the
// "default" key; a nil result disables pacing for the request.
func (r *ThrottleRegistry) ThrottleFor(req *Request) (*Throttle, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}

	key := r.keyFunc(req)

	r.mu.RLock()
	throttle, exists := r.throttles[key]
	r.mu.RUnlock()

	if exists {
		return throttle, key
	}

	if r.fallback != nil {
		return r.fallback, "default"
	}
	return nil, key
}

// TargetThrottleKey keys pacing by the request target.
func TargetThrottleKey(req *Request) string {
	return "target:" + req.Target
}

// MethodTargetThrottleKey keys pacing by method and target.
func MethodTargetThrottleKey(req *Request) string {
	return "route:" + req.Method + ":" + req.Target
}
