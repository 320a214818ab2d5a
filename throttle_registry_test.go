package kurirgo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const (
	registryTestTarget = "/users"
	registryTargetKey  = "target:/users"
	registryDefaultKey = "default"
	registryFallback   = "Expected fallback throttle, got %v"
	registryKeyWant    = "Expected key '%s', got %s"
)

func TestThrottleRegistryThrottleFor(t *testing.T) {
	fallback := NewThrottle(10, 1)
	specific := NewThrottle(20, 2)

	registry := NewThrottleRegistry(TargetThrottleKey, fallback)

	// Unregistered target resolves to the fallback
	throttle, key := registry.ThrottleFor(NewRequest("GET", "/unknown"))
	if throttle != fallback {
		t.Errorf(registryFallback, throttle)
	}
	if key != registryDefaultKey {
		t.Errorf(registryKeyWant, registryDefaultKey, key)
	}

	registry.Register(registryTargetKey, specific)

	// Registered target resolves to its own throttle
	throttle, key = registry.ThrottleFor(NewRequest("GET", registryTestTarget))
	if throttle != specific {
		t.Errorf("Expected specific throttle, got %v", throttle)
	}
	if key != registryTargetKey {
		t.Errorf(registryKeyWant, registryTargetKey, key)
	}

	// Other targets still fall back
	throttle, key = registry.ThrottleFor(NewRequest("GET", "/orders"))
	if throttle != fallback {
		t.Errorf(registryFallback, throttle)
	}
	if key != registryDefaultKey {
		t.Errorf(registryKeyWant, registryDefaultKey, key)
	}
}

func TestThrottleRegistryNoKeyFunc(t *testing.T) {
	fallback := NewThrottle(10, 1)
	registry := NewThrottleRegistry(nil, fallback)

	throttle, key := registry.ThrottleFor(NewRequest("GET", registryTestTarget))
	if throttle != fallback {
		t.Errorf(registryFallback, throttle)
	}
	if key != registryDefaultKey {
		t.Errorf(registryKeyWant, registryDefaultKey, key)
	}
}

func TestThrottleRegistryNoThrottle(t *testing.T) {
	registry := NewThrottleRegistry(TargetThrottleKey, nil)

	throttle, key := registry.ThrottleFor(NewRequest("GET", registryTestTarget))
	if throttle != nil {
		t.Errorf("Expected nil throttle, got %v", throttle)
	}
	if key != registryTargetKey {
		t.Errorf(registryKeyWant, registryTargetKey, key)
	}

	// A nil throttle disables pacing rather than blocking the call
	if err := throttle.Wait(context.Background()); err != nil {
		t.Errorf("Wait on nil throttle should allow, got %v", err)
	}
}

func TestThrottleRegistryConcurrency(t *testing.T) {
	registry := NewThrottleRegistry(TargetThrottleKey, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			key := fmt.Sprintf("target:/tenant%d", id)
			registry.Register(key, NewThrottle(100, 10))

			for j := 0; j < 10; j++ {
				req := NewRequest("GET", fmt.Sprintf("/tenant%d", id))
				_, resolved := registry.ThrottleFor(req)
				if resolved != key {
					t.Errorf("Concurrent resolution failed: expected %s, got %s", key, resolved)
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestThrottleKeyFuncs(t *testing.T) {
	req := NewRequest("GET", registryTestTarget)

	if got := TargetThrottleKey(req); got != registryTargetKey {
		t.Errorf("Expected target key %s, got %s", registryTargetKey, got)
	}

	if got := MethodTargetThrottleKey(req); got != "route:GET:/users" {
		t.Errorf("Expected route key route:GET:/users, got %s", got)
	}
}

func TestClientWithThrottleRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := NewThrottleRegistry(TargetThrottleKey, NewThrottle(100, 10))
	registry.Register("target:/paced", NewThrottle(50, 5))

	client := New(
		WithBaseURL(server.URL),
		WithThrottleRegistry(registry),
	)

	if client.throttleRegistry == nil {
		t.Fatal("throttleRegistry not set")
	}

	resp, err := client.Get(context.Background(), "/paced")
	if err != nil {
		t.Fatalf("Get through registry failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}
