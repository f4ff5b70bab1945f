package application

import (
	"context"
	"errors"
	"fmt"

	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/validations"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
	OutcomeMissed  Outcome = "missed"
)

// StatusReconciler applies provider receipts to stored chats. Only "read"
// changes anything; reapplying it is a noop.
type StatusReconciler struct {
	chats chatDomain.Store
}

func NewStatusReconciler(chats chatDomain.Store) *StatusReconciler {
	return &StatusReconciler{chats: chats}
}

func (s *StatusReconciler) ApplyStatus(ctx context.Context, st event.StatusEvent) (Outcome, error) {
	if err := validations.ValidateStatusEvent(ctx, st); err != nil {
		return "", err
	}
	if st.Status != event.StatusRead {
		logrus.Debugf("[STATUS] %s for %s ignored", st.Status, st.Wamid)
		return OutcomeIgnored, nil
	}

	c, err := s.chats.FindByWamid(ctx, st.Wamid)
	if errors.Is(err, chatDomain.ErrNotFound) {
		logrus.WithField("wamid", st.Wamid).Info("[STATUS] Read receipt for unknown message")
		return OutcomeMissed, nil
	}
	if err != nil {
		return "", &pkgError.PersistenceError{Op: "find chat", Err: err}
	}
	if !c.Unread {
		return OutcomeNoop, nil
	}

	changed, err := s.chats.MarkRead(ctx, c.ID)
	if err != nil {
		return "", &pkgError.PersistenceError{Op: "mark chat read", Err: err}
	}
	if !changed {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

// MarkReadUpTo marks the chat identified by wamid and every earlier unread
// chat of its thread as read. The thread's unread counter is left untouched.
func (s *StatusReconciler) MarkReadUpTo(ctx context.Context, wamid string) (int64, error) {
	if wamid == "" {
		return 0, pkgError.ValidationError("wamid: cannot be blank.")
	}
	c, err := s.chats.FindByWamid(ctx, wamid)
	if errors.Is(err, chatDomain.ErrNotFound) {
		return 0, pkgError.NotFoundError(fmt.Sprintf("chat %s not found", wamid))
	}
	if err != nil {
		return 0, &pkgError.PersistenceError{Op: "find chat", Err: err}
	}

	n, err := s.chats.MarkReadUpTo(ctx, c.ThreadID, c.CreatedAt)
	if err != nil {
		return 0, &pkgError.PersistenceError{Op: "mark chats read", Err: err}
	}
	return n, nil
}
