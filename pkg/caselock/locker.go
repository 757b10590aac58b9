// Package caselock enforces the single-writer rule: at most one request
// processes a given case at a time. A lock is a lease, not a mutex; holders
// that die simply stop renewing and the next request steals the expired
// lease instead of waiting on a ghost.
package caselock

import (
	"context"
	"errors"
	"time"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const component = "caselock"

// ErrBusy reports that another request currently holds the case. Callers
// surface it as a busy response rather than queueing.
var ErrBusy = errors.New("case is locked by another request")

// Lease is a time-bounded claim on a case. The token is the proof of
// ownership: release and renewal only act when the stored token matches.
type Lease struct {
	CaseID   string
	Owner    string
	Token    string
	Deadline time.Time
}

// Locker hands out case leases.
type Locker interface {
	// Acquire claims the case or returns ErrBusy. An expired lease held by
	// a dead owner is stolen silently.
	Acquire(ctx context.Context, caseID, owner string) (Lease, error)

	// Release frees the case if the lease token still matches. Releasing a
	// lease that expired and was stolen is a no-op, never an error.
	Release(ctx context.Context, lease Lease) error

	// SweepExpired drops expired leases and reports how many were removed.
	// Backends with native expiry return 0.
	SweepExpired(ctx context.Context) (int, error)

	Close() error
}

// New builds a locker for the configured backend.
func New(ctx context.Context, cfg *config.LockConfig) (Locker, error) {
	lease := time.Duration(cfg.LeaseSeconds) * time.Second
	switch cfg.Backend {
	case config.LockBackendMemory:
		return NewMemoryLocker(lease), nil
	case config.LockBackendRedis:
		return NewRedisLocker(ctx, &cfg.Redis, lease)
	default:
		return nil, fault.New(fault.Validation, component, "new",
			"unknown lock backend '"+string(cfg.Backend)+"'", nil)
	}
}
