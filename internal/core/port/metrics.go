package port

// SecurityMetrics counts domain-level security activity for operational
// dashboards. Implementations must be safe for concurrent use.
type SecurityMetrics interface {
	// RecordPolicyRejection counts one violated policy rule by reason code.
	RecordPolicyRejection(reason string)
	// RecordLockout counts one key crossing the failure threshold.
	RecordLockout()
	// RecordAuditWrite counts one durable audit insert by action.
	RecordAuditWrite(action string)
	// AddExportedRows adds the data rows streamed by one audit export.
	AddExportedRows(rows int64)
}
