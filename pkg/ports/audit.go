package ports

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

// AuditPublisher receives audit events. Publishing is best-effort.
type AuditPublisher interface {
	// IsAuditing reports whether eventName on topic is audited for realm.
	IsAuditing(realm, topic, eventName string) bool

	// Publish hands event to the audit pipeline.
	Publish(ctx context.Context, topic string, event domain.AuditEvent) error
}

// FeatureFlag is re-read on every use so operators can toggle behaviour at runtime.
type FeatureFlag interface {
	Enabled() bool
}

// FlagFunc adapts a function to FeatureFlag.
type FlagFunc func() bool

// Enabled calls f.
func (f FlagFunc) Enabled() bool { return f() }
