package thread

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("thread not found")

type Status string

const (
	StatusQueue     Status = "QUEUE"
	StatusProcessed Status = "PROCESSED"
	StatusCompleted Status = "COMPLETED"
)

// Thread is one conversation between a business number and one contact.
// At most one thread per (WaBusinessID, ContactWaID) is not COMPLETED.
type Thread struct {
	ID                   string               `json:"id"`
	WaBusinessID         string               `json:"wa_business_id"`
	PhoneNumberID        string               `json:"phone_number_id"`
	DisplayPhoneNumber   string               `json:"display_phone_number"`
	ContactWaID          string               `json:"contact_wa_id"`
	ContactName          string               `json:"contact_name"`
	UnreadCount          int                  `json:"unread_count"`
	Status               Status               `json:"status"`
	LastMessage          string               `json:"last_message"`
	LastMessageMediaType string               `json:"last_message_media_type,omitempty"`
	FirstResponseAt      *time.Time           `json:"first_response_at,omitempty"`
	LastResponseAt       *time.Time           `json:"last_response_at,omitempty"`
	HandledBy            string               `json:"handled_by,omitempty"`
	InternalUserDetail   []InternalUserDetail `json:"internal_user_detail"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	// Version increases with every Save; a stale Version makes Save fail.
	Version              int64                `json:"version"`
}

// InternalUserDetail records an agent who replied in the thread.
type InternalUserDetail struct {
	ID              string     `json:"id"`
	ThreadID        string     `json:"thread_id"`
	CrmUserID       string     `json:"crm_user_id"`
	Name            string     `json:"name"`
	Avatar          string     `json:"avatar,omitempty"`
	FirstResponseAt *time.Time `json:"first_response_at,omitempty"`
	LastResponseAt  *time.Time `json:"last_response_at,omitempty"`
}

func (t *Thread) IsOpen() bool {
	return t.Status != StatusCompleted
}

// Clone returns a deep copy, used as the restore point when an append fails.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.LastResponseAt = cloneTime(t.LastResponseAt)
	if t.InternalUserDetail != nil {
		c.InternalUserDetail = make([]InternalUserDetail, len(t.InternalUserDetail))
		for i, d := range t.InternalUserDetail {
			d.FirstResponseAt = cloneTime(d.FirstResponseAt)
			d.LastResponseAt = cloneTime(d.LastResponseAt)
			c.InternalUserDetail[i] = d
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Store persists threads. Create must fail with a ConflictError when an open
// thread already exists for the same (WaBusinessID, ContactWaID).
type Store interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, t *Thread) error
	Save(ctx context.Context, t *Thread) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Thread, error)
	// FindLatest returns the most recently created thread for the pair or ErrNotFound.
	FindLatest(ctx context.Context, waBusinessID, contactWaID string) (*Thread, error)
	CountOpen(ctx context.Context, waBusinessID, contactWaID string) (int64, error)
}

// Locker serializes resolve-then-write sections across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LockKey is the critical-section key for a (WABA, contact) pair.
func LockKey(waBusinessID, contactWaID string) string {
	return waBusinessID + "|" + contactWaID
}
