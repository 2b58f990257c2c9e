package sessions

import (
	"context"
	"errors"

	"github.com/ggoodman/authgate/auth"
)

// ErrWriteFailed wraps every Store.Set failure.
var ErrWriteFailed = errors.New("sessions: write failed")

// Record is the persisted session state for one subject.
type Record struct {
	UserID   string        `json:"userId"`
	UserType auth.UserType `json:"userType"`
	// IsActive is nil when the writer omitted the field; that is treated as
	// active.
	IsActive    *bool    `json:"isActive,omitempty"`
	RetailerID  string   `json:"retailerId,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	StoreIDs    []string `json:"storeIds,omitempty"`
}

// Active reports whether the record permits authentication.
func (r *Record) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// Bool returns a pointer to b, for building records.
func Bool(b bool) *bool { return &b }

// Store reads and writes session records by subject.
type Store interface {
	// Get returns the record for subject. ok is false when there is no
	// record or the backend could not be read.
	Get(ctx context.Context, subject string) (rec *Record, ok bool)
	// Set writes the record for subject.
	Set(ctx context.Context, subject string, rec *Record) error
	// Close releases the backend.
	Close() error
}

// Key returns the storage key for subject in the given environment.
func Key(environment, subject string) string {
	return environment + ":user:" + subject
}
