package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestMetrics_EntitlementChecks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordEntitlementCheck(true, time.Millisecond)
	metrics.RecordEntitlementCheck(false, time.Millisecond)
	metrics.RecordEntitlementCheck(true, time.Millisecond)

	family := findFamily(t, reg, "test_entitlement_checks_total")
	for _, m := range family.GetMetric() {
		switch labelValue(m, "entitled") {
		case "true":
			if m.GetCounter().GetValue() != 2 {
				t.Errorf("entitled=true: got %v", m.GetCounter().GetValue())
			}
		case "false":
			if m.GetCounter().GetValue() != 1 {
				t.Errorf("entitled=false: got %v", m.GetCounter().GetValue())
			}
		}
	}
}

func TestMetrics_StorageErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordStorageOperation("save_account", time.Millisecond, nil)
	metrics.RecordStorageOperation("save_account", time.Millisecond, errors.New("boom"))

	family := findFamily(t, reg, "test_storage_operation_errors_total")
	if got := family.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("expected 1 storage error, got %v", got)
	}
	hist := findFamily(t, reg, "test_storage_operation_duration_seconds")
	if got := hist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("expected 2 samples, got %d", got)
	}
}

func TestMetrics_Downgrades(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordExpiredDowngrade(true)
	metrics.RecordCircuitBreakerStateChange("open")
	metrics.RecordCacheHit("account")
	metrics.RecordCacheMiss("account")

	family := findFamily(t, reg, "test_expired_downgrades_total")
	if labelValue(family.GetMetric()[0], "notified") != "true" {
		t.Error("expected notified=true label")
	}
	findFamily(t, reg, "test_circuit_breaker_state_changes_total")
	findFamily(t, reg, "test_cache_hits_total")
}
