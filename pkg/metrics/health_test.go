package metrics

import (
	"testing"
	"time"
)

func TestUpdateComponent(t *testing.T) {
	resetHealth()

	UpdateComponent("worker", true, "running")

	components := Components()
	if len(components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(components))
	}
	if components["worker"] != "ok" {
		t.Errorf("expected 'ok', got '%s'", components["worker"])
	}
	if !Healthy() {
		t.Error("process should be healthy")
	}
}

func TestUpdateComponentOverwrites(t *testing.T) {
	resetHealth()

	UpdateComponent("worker", true, "running")
	UpdateComponent("worker", false, "claim loop stopped")

	components := Components()
	if components["worker"] != "claim loop stopped" {
		t.Errorf("expected failure message, got '%s'", components["worker"])
	}
	if Healthy() {
		t.Error("process should be unhealthy")
	}
}

func TestUnhealthyWithoutMessage(t *testing.T) {
	resetHealth()

	UpdateComponent("scheduler", false, "")

	components := Components()
	if components["scheduler"] != "unhealthy" {
		t.Errorf("expected 'unhealthy', got '%s'", components["scheduler"])
	}
}

func TestHealthyWithNoComponents(t *testing.T) {
	resetHealth()

	if !Healthy() {
		t.Error("a process with no registered components should be healthy")
	}
	if len(Components()) != 0 {
		t.Error("expected empty component map")
	}
}

func TestHealthyRequiresAllComponents(t *testing.T) {
	resetHealth()

	UpdateComponent("worker", true, "")
	UpdateComponent("scheduler", true, "")
	if !Healthy() {
		t.Error("all healthy components should report healthy")
	}

	UpdateComponent("scheduler", false, "lock lost")
	if Healthy() {
		t.Error("one unhealthy component should flip the process")
	}
}

func TestVersionRoundTrip(t *testing.T) {
	resetHealth()

	if Version() != "" {
		t.Errorf("expected empty version, got '%s'", Version())
	}

	SetVersion("1.2.3")
	if Version() != "1.2.3" {
		t.Errorf("expected '1.2.3', got '%s'", Version())
	}
}

func TestUptimeIncreases(t *testing.T) {
	first := Uptime()
	time.Sleep(10 * time.Millisecond)
	second := Uptime()

	if second <= first {
		t.Errorf("uptime should increase: first=%v, second=%v", first, second)
	}
}

func TestComponentsReturnsCopy(t *testing.T) {
	resetHealth()

	UpdateComponent("worker", true, "")
	components := Components()
	components["worker"] = "tampered"

	if Components()["worker"] != "ok" {
		t.Error("mutating the snapshot must not affect the registry")
	}
}
