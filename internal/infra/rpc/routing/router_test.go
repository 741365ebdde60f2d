package routing

import (
	"errors"
	"testing"
	"time"
)

func TestRouter_RoundRobin(t *testing.T) {
	r := NewRouter()
	r.AddProvider(newMockProvider("a"))
	r.AddProvider(newMockProvider("b"))
	r.AddProvider(newMockProvider("c"))

	var firsts []string
	for i := 0; i < 4; i++ {
		firsts = append(firsts, r.GetAllProviders()[0].GetName())
	}

	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if firsts[i] != want[i] {
			t.Fatalf("expected rotation %v, got %v", want, firsts)
		}
	}
}

func TestRouter_UnavailableLast(t *testing.T) {
	r := NewRouter()
	down := newMockProvider("down")
	down.available = false
	r.AddProvider(down)
	r.AddProvider(newMockProvider("up"))

	ps := r.GetAllProviders()
	if len(ps) != 2 {
		t.Fatalf("expected all providers, got %d", len(ps))
	}
	if ps[0].GetName() != "up" || ps[1].GetName() != "down" {
		t.Errorf("expected [up down], got [%s %s]", ps[0].GetName(), ps[1].GetName())
	}
}

func TestRouter_CircuitBreaker(t *testing.T) {
	r := NewRouter()
	r.AddProvider(newMockProvider("flaky"))
	r.AddProvider(newMockProvider("stable"))

	for i := 0; i < circuitThreshold; i++ {
		r.RecordFailure("flaky", errors.New("timeout"))
	}
	if !r.IsCircuitOpen("flaky") {
		t.Fatal("expected circuit to open")
	}

	for i := 0; i < 2; i++ {
		if ps := r.GetAllProviders(); ps[0].GetName() != "stable" {
			t.Errorf("open circuit provider should be tried last, got %s first", ps[0].GetName())
		}
	}

	r.RecordSuccess("flaky", time.Millisecond)
	if r.IsCircuitOpen("flaky") {
		t.Error("success should close the circuit")
	}
}
