package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainMetricsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create domain metrics: %v", err)
	}

	metrics.RecordPolicyRejection("too_short")
	metrics.RecordPolicyRejection("too_short")
	metrics.RecordPolicyRejection("password_reused")
	metrics.RecordLockout()
	metrics.RecordAuditWrite("auth_failure")
	metrics.AddExportedRows(42)

	if got := testutil.ToFloat64(metrics.PolicyRejections.WithLabelValues("too_short")); got != 2 {
		t.Fatalf("expected 2 too_short rejections, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.PolicyRejections.WithLabelValues("password_reused")); got != 1 {
		t.Fatalf("expected 1 password_reused rejection, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Lockouts); got != 1 {
		t.Fatalf("expected 1 lockout, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.AuditWrites.WithLabelValues("auth_failure")); got != 1 {
		t.Fatalf("expected 1 auth_failure write, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ExportedRows); got != 42 {
		t.Fatalf("expected 42 exported rows, got %f", got)
	}
}

func TestDomainMetricsReusesExistingCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create domain metrics: %v", err)
	}
	second, err := NewDomainMetrics(DomainMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to recreate domain metrics: %v", err)
	}

	first.RecordLockout()
	second.RecordLockout()

	if got := testutil.ToFloat64(second.Lockouts); got != 2 {
		t.Fatalf("expected shared lockout counter at 2, got %f", got)
	}
}

func TestDomainMetricsNilReceiverIsNoop(t *testing.T) {
	var metrics *DomainMetrics

	metrics.RecordPolicyRejection("too_short")
	metrics.RecordLockout()
	metrics.RecordAuditWrite("export")
	metrics.AddExportedRows(7)
}
