package storage

import (
	"context"
	"fmt"
	"strings"

	logx "cctvbot/pkg/logx"
)

// ViolationStore reads and mutates violation records.
type ViolationStore interface {
	FetchAll(ctx context.Context) ([]Violation, error)
	FetchUnresolved(ctx context.Context) ([]Violation, error)
	FetchByViolationType(ctx context.Context, violationType string) ([]Violation, error)
	FetchByFactoryArea(ctx context.Context, area string) ([]Violation, error)
	UpdateResolved(ctx context.Context, id string, resolved bool) (bool, error)
	InsertViolation(ctx context.Context, v Violation) (Violation, error)
	InsertSynthetic(ctx context.Context) (Violation, error)
}

// SubscriberStore persists chat endpoints. Removal is a soft delete.
type SubscriberStore interface {
	ListActiveAddresses(ctx context.Context) ([]string, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	AddAddress(ctx context.Context, addr string) (bool, error)
	DeactivateAddress(ctx context.Context, addr string) (bool, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence API used by the service.
type Store interface {
	ViolationStore
	SubscriberStore
	AuditStore
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
