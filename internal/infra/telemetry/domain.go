package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetricsOptions configures the security-domain collectors.
type DomainMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// DomainMetrics exposes Prometheus counters for security-domain activity:
// policy rejections, lockout transitions, audit writes, and export volume.
type DomainMetrics struct {
	PolicyRejections *prometheus.CounterVec
	Lockouts         prometheus.Counter
	AuditWrites      *prometheus.CounterVec
	ExportedRows     prometheus.Counter
}

// NewDomainMetrics constructs the domain collectors and registers them with the provided registerer.
func NewDomainMetrics(opts DomainMetricsOptions) (*DomainMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "authguard"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_rejections_total",
		Help:      "Total number of password policy rule violations partitioned by reason code.",
	}, []string{"reason"})

	if err := reg.Register(rejections); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				rejections = existing
			} else {
				return nil, fmt.Errorf("existing rejections collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register rejections collector: %w", err)
		}
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of attempt keys locked after crossing the failure threshold.",
	})

	if err := reg.Register(lockouts); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				lockouts = existing
			} else {
				return nil, fmt.Errorf("existing lockouts collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register lockouts collector: %w", err)
		}
	}

	auditWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_writes_total",
		Help:      "Total number of durable audit record inserts partitioned by action.",
	}, []string{"action"})

	if err := reg.Register(auditWrites); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				auditWrites = existing
			} else {
				return nil, fmt.Errorf("existing audit writes collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register audit writes collector: %w", err)
		}
	}

	exportedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_export_rows_total",
		Help:      "Total number of data rows streamed by audit exports.",
	})

	if err := reg.Register(exportedRows); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				exportedRows = existing
			} else {
				return nil, fmt.Errorf("existing export rows collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register export rows collector: %w", err)
		}
	}

	return &DomainMetrics{
		PolicyRejections: rejections,
		Lockouts:         lockouts,
		AuditWrites:      auditWrites,
		ExportedRows:     exportedRows,
	}, nil
}

// RecordPolicyRejection counts one violated policy rule by reason code.
func (m *DomainMetrics) RecordPolicyRejection(reason string) {
	if m == nil || m.PolicyRejections == nil {
		return
	}
	m.PolicyRejections.WithLabelValues(reason).Inc()
}

// RecordLockout counts one key crossing the failure threshold.
func (m *DomainMetrics) RecordLockout() {
	if m == nil || m.Lockouts == nil {
		return
	}
	m.Lockouts.Inc()
}

// RecordAuditWrite counts one durable audit insert by action.
func (m *DomainMetrics) RecordAuditWrite(action string) {
	if m == nil || m.AuditWrites == nil {
		return
	}
	m.AuditWrites.WithLabelValues(action).Inc()
}

// AddExportedRows adds the data rows streamed by one audit export.
func (m *DomainMetrics) AddExportedRows(rows int64) {
	if m == nil || m.ExportedRows == nil || rows <= 0 {
		return
	}
	m.ExportedRows.Add(float64(rows))
}
