package gate

import (
	"context"
	"time"
)

// AuditEventType enumerates supported audit categories.
type AuditEventType string

const (
	AuditVerifySuccess  AuditEventType = "credential.verify.success"
	AuditVerifyFailure  AuditEventType = "credential.verify.failure"
	AuditStepUpIssued   AuditEventType = "credential.stepup.issued"
	AuditRoleRevoked    AuditEventType = "revocation.role"
	AuditSessionRevoked AuditEventType = "revocation.session"
)

// AuditEvent captures audit-friendly information about an authorization
// action. Internal denial reasons stay in Metadata for sinks that persist
// them; they are never echoed in responses.
type AuditEvent struct {
	EventType  AuditEventType
	Role       Role
	JTI        string
	Metadata   map[string]any
	OccurredAt time.Time
}

// AuditSink consumes audit events for logging/telemetry purposes.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditSink(s AuditSink) AuditSink {
	if s == nil {
		return noopAuditSink{}
	}
	return s
}
