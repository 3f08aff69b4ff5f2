package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckerRollsUpWorstComponentStatus(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("store", func() ComponentHealth { return ComponentHealth{Status: StatusHealthy} })
	hc.RegisterCheck("worker_pool", func() ComponentHealth { return ComponentHealth{Status: StatusDegraded, Message: "near capacity"} })

	report := hc.Check()
	if report.Status != StatusDegraded {
		t.Fatalf("overall status = %s, want %s", report.Status, StatusDegraded)
	}
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
}

func TestHealthCheckerUnhealthyOutranksDegraded(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("store", func() ComponentHealth { return ComponentHealth{Status: StatusUnhealthy} })
	hc.RegisterCheck("worker_pool", func() ComponentHealth { return ComponentHealth{Status: StatusDegraded} })

	if got := hc.Check().Status; got != StatusUnhealthy {
		t.Fatalf("overall status = %s, want %s", got, StatusUnhealthy)
	}
}

func TestHealthCheckerHandlerReturns503WhenUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("store", func() ComponentHealth { return ComponentHealth{Status: StatusUnhealthy} })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	hc.Handler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if report.Status != StatusUnhealthy {
		t.Errorf("decoded status = %s, want %s", report.Status, StatusUnhealthy)
	}
}

func TestBreakerComponentCheckMapsStateToStatus(t *testing.T) {
	cases := map[string]ComponentStatus{
		"closed":    StatusHealthy,
		"half-open": StatusDegraded,
		"open":      StatusUnhealthy,
	}
	for state, want := range cases {
		check := BreakerComponentCheck(func() string { return state })
		if got := check().Status; got != want {
			t.Errorf("state %q: status = %s, want %s", state, got, want)
		}
	}
}

func TestWorkerPoolComponentCheckDegradesAtCapacity(t *testing.T) {
	check := WorkerPoolComponentCheck(func() int { return 10 }, 10)
	if got := check().Status; got != StatusDegraded {
		t.Errorf("at-capacity status = %s, want %s", got, StatusDegraded)
	}

	check = WorkerPoolComponentCheck(func() int { return 2 }, 10)
	if got := check().Status; got != StatusHealthy {
		t.Errorf("below-capacity status = %s, want %s", got, StatusHealthy)
	}
}
