package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	threadDomain "github.com/AzielCF/az-wacloud/inbox/domain/thread"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Decision is the outcome of resolving a message onto a thread. Previous is the
// pre-update snapshot of a reused thread and nil when IsNew.
type Decision struct {
	Thread   *threadDomain.Thread
	Previous *threadDomain.Thread
	IsNew    bool
}

// Transactor runs fn in one storage transaction carried by the context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ThreadResolver struct {
	threads threadDomain.Store
	locker  threadDomain.Locker
	tx      Transactor
	now     func() time.Time
	newID   func() string
}

func NewThreadResolver(threads threadDomain.Store, locker threadDomain.Locker) *ThreadResolver {
	return &ThreadResolver{
		threads: threads,
		locker:  locker,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// UseTransactions makes every Apply attempt run in one transaction, so the
// thread write and whatever then writes commit or roll back together.
func (r *ThreadResolver) UseTransactions(tx Transactor) *ThreadResolver {
	r.tx = tx
	return r
}

// Transactional reports whether Apply attempts run in a transaction.
func (r *ThreadResolver) Transactional() bool {
	return r.tx != nil
}

// Resolve returns the latest thread for the pair, COMPLETED included, or nil.
func (r *ThreadResolver) Resolve(ctx context.Context, waBusinessID, contactWaID string) (*threadDomain.Thread, error) {
	t, err := r.threads.FindLatest(ctx, waBusinessID, contactWaID)
	if errors.Is(err, threadDomain.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// ResolveOrCreate persists the thread the message belongs to and returns the decision.
func (r *ThreadResolver) ResolveOrCreate(ctx context.Context, ev event.MessageEvent) (Decision, error) {
	return r.Apply(ctx, ev, nil)
}

// Apply resolves and persists the thread for ev, then runs then inside the same
// critical section. A lost creation race or a stale thread save is retried
// once; errors returned by then are never retried.
func (r *ThreadResolver) Apply(ctx context.Context, ev event.MessageEvent, then func(ctx context.Context, d Decision) error) (Decision, error) {
	key := threadDomain.LockKey(ev.WaBusinessID, ev.ContactWaID)

	var (
		decision   Decision
		resolveErr error
	)
	section := func(ctx context.Context) error {
		decision, resolveErr = r.resolveOrCreate(ctx, ev)
		if resolveErr != nil {
			return resolveErr
		}
		if then != nil {
			return then(ctx, decision)
		}
		return nil
	}
	attempt := section
	if r.tx != nil {
		attempt = func(ctx context.Context) error {
			return r.tx.WithinTx(ctx, section)
		}
	}

	err := r.locker.WithLock(ctx, key, attempt)
	if resolveErr != nil && isConflict(resolveErr) {
		logrus.WithField("key", key).WithError(resolveErr).Debug("[THREAD] Lost thread write race, retrying once")
		resolveErr = nil
		err = r.locker.WithLock(ctx, key, attempt)
	}
	return decision, err
}

func (r *ThreadResolver) resolveOrCreate(ctx context.Context, ev event.MessageEvent) (Decision, error) {
	existing, err := r.Resolve(ctx, ev.WaBusinessID, ev.ContactWaID)
	if err != nil {
		return Decision{}, err
	}

	now := r.now()
	if existing == nil || !existing.IsOpen() {
		t := r.seed(ev, now)
		if err := r.threads.Create(ctx, t); err != nil {
			return Decision{}, err
		}
		logrus.WithFields(logrus.Fields{
			"thread_id": t.ID,
			"waba_id":   t.WaBusinessID,
			"contact":   t.ContactWaID,
		}).Info("[THREAD] Opened new thread")
		return Decision{Thread: t, IsNew: true}, nil
	}

	previous := existing.Clone()
	overlay(existing, ev)
	applyMessage(existing, ev, now, r.newID)
	if err := r.threads.Save(ctx, existing); err != nil {
		return Decision{}, err
	}
	return Decision{Thread: existing, Previous: previous}, nil
}

func (r *ThreadResolver) seed(ev event.MessageEvent, now time.Time) *threadDomain.Thread {
	t := &threadDomain.Thread{
		ID:                 r.newID(),
		WaBusinessID:       ev.WaBusinessID,
		PhoneNumberID:      ev.PhoneNumberID,
		DisplayPhoneNumber: ev.DisplayPhoneNumber,
		ContactWaID:        ev.ContactWaID,
		ContactName:        ev.ContactName,
		Status:             threadDomain.StatusQueue,
		InternalUserDetail: []threadDomain.InternalUserDetail{},
		CreatedAt:          now,
	}
	applyMessage(t, ev, now, r.newID)
	return t
}

// overlay copies identity fields from ev, keeping existing values when ev's are empty.
func overlay(t *threadDomain.Thread, ev event.MessageEvent) {
	if ev.PhoneNumberID != "" {
		t.PhoneNumberID = ev.PhoneNumberID
	}
	if ev.DisplayPhoneNumber != "" {
		t.DisplayPhoneNumber = ev.DisplayPhoneNumber
	}
	if ev.ContactName != "" {
		t.ContactName = ev.ContactName
	}
}

// applyMessage advances the last-message summary, the unread counter and
// responder bookkeeping.
func applyMessage(t *threadDomain.Thread, ev event.MessageEvent, now time.Time, newID func() string) {
	if ev.Body != "" {
		t.LastMessage = ev.Body
	}
	t.LastMessageMediaType = ev.MediaType
	t.UpdatedAt = now

	if ev.IsInbound() {
		t.UnreadCount++
		return
	}

	at := now
	if t.FirstResponseAt == nil {
		t.FirstResponseAt = &at
	}
	last := now
	t.LastResponseAt = &last

	if ev.AgentID == "" {
		return
	}
	t.HandledBy = ev.AgentID
	for i := range t.InternalUserDetail {
		d := &t.InternalUserDetail[i]
		if d.CrmUserID != ev.AgentID {
			continue
		}
		if ev.AgentName != "" {
			d.Name = ev.AgentName
		}
		if ev.AgentAvatar != "" {
			d.Avatar = ev.AgentAvatar
		}
		if d.FirstResponseAt == nil {
			first := now
			d.FirstResponseAt = &first
		}
		l := now
		d.LastResponseAt = &l
		return
	}
	first, l := now, now
	t.InternalUserDetail = append(t.InternalUserDetail, threadDomain.InternalUserDetail{
		ID:              newID(),
		ThreadID:        t.ID,
		CrmUserID:       ev.AgentID,
		Name:            ev.AgentName,
		Avatar:          ev.AgentAvatar,
		FirstResponseAt: &first,
		LastResponseAt:  &l,
	})
}

func isConflict(err error) bool {
	var conflict pkgError.ConflictError
	return errors.As(err, &conflict)
}
