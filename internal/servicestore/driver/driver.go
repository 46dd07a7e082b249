// Package driver defines the ServiceStore interface and the registration model.
package driver

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ServiceStore is the registry of running services. There is at most one
// registration per (host, binary) pair.
type ServiceStore interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, id string) (*Registration, error)
	GetByArgs(ctx context.Context, host, binary string) (*Registration, error)
	// Create stores a new registration. An empty ID is filled in by the store.
	Create(ctx context.Context, reg Registration) (*Registration, error)
	Update(ctx context.Context, id string, update ServiceUpdate) (*Registration, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListRequest) ([]Registration, error)
}

var (
	ErrServiceNotFound  = errors.New("service does not exist")
	ErrDuplicateService = errors.New("service already registered for host and binary")
	ErrInvalidService   = errors.New("service registration requires host, binary and topic")
)

// Registration is the registry-resident record of a running service.
type Registration struct {
	ID               string    `json:"id"`
	Host             string    `json:"host"`
	Binary           string    `json:"binary"`
	Topic            string    `json:"topic"`
	ReportCount      int       `json:"report_count"`
	AvailabilityZone string    `json:"availability_zone"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r *Registration) Validate() error {
	if r.Host == "" || r.Binary == "" || r.Topic == "" {
		return ErrInvalidService
	}
	return nil
}

// ServiceUpdate lists the mutable fields. Nil fields are left untouched.
type ServiceUpdate struct {
	ReportCount      *int
	AvailabilityZone *string
}

// ListRequest filters List results. Empty fields match everything.
type ListRequest struct {
	Topic string
	Host  string
}

func (req ListRequest) Matches(reg Registration) bool {
	if req.Topic != "" && reg.Topic != req.Topic {
		return false
	}
	if req.Host != "" && reg.Host != req.Host {
		return false
	}
	return true
}

// IsUp reports whether the registration was updated within downTime of now.
func IsUp(reg Registration, now time.Time, downTime time.Duration) bool {
	return now.Sub(reg.UpdatedAt) <= downTime
}

// SortRegistrations orders registrations by host, then binary.
func SortRegistrations(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Host != regs[j].Host {
			return regs[i].Host < regs[j].Host
		}
		return regs[i].Binary < regs[j].Binary
	})
}
