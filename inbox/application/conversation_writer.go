package application

import (
	"context"
	"errors"
	"time"

	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	threadDomain "github.com/AzielCF/az-wacloud/inbox/domain/thread"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type AppendResult struct {
	Chat        *chatDomain.Chat     `json:"chat"`
	Thread      *threadDomain.Thread `json:"thread"`
	IsNewThread bool                 `json:"is_new_thread"`
}

// ConversationWriter appends a message to its thread. With a transactional
// resolver the thread write and the chat write commit together. Otherwise they
// are separate, and when the chat write fails the thread is put back the way
// it was (deleted if new, snapshot restored otherwise) unless another writer
// saved it in between.
type ConversationWriter struct {
	resolver *ThreadResolver
	threads  threadDomain.Store
	chats    chatDomain.Store
	now      func() time.Time
	newID    func() string
}

func NewConversationWriter(resolver *ThreadResolver, threads threadDomain.Store, chats chatDomain.Store) *ConversationWriter {
	return &ConversationWriter{
		resolver: resolver,
		threads:  threads,
		chats:    chats,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func (w *ConversationWriter) Append(ctx context.Context, ev event.MessageEvent) (AppendResult, error) {
	if err := validations.ValidateMessageEvent(ctx, ev); err != nil {
		return AppendResult{}, err
	}

	var result AppendResult
	_, err := w.resolver.Apply(ctx, ev, func(ctx context.Context, d Decision) error {
		c := w.buildChat(d.Thread, ev)
		if err := w.chats.Create(ctx, c); err != nil {
			persistErr := &pkgError.PersistenceError{Op: "create chat", Err: err}
			if w.resolver.Transactional() {
				// the transaction rollback undoes the thread write
				return persistErr
			}
			if compErr := w.compensate(ctx, d); compErr != nil {
				logrus.WithError(compErr).WithField("thread_id", d.Thread.ID).Error("[THREAD] Compensation failed, thread may be inconsistent")
				return errors.Join(persistErr, compErr)
			}
			return persistErr
		}
		result = AppendResult{Chat: c, Thread: d.Thread, IsNewThread: d.IsNew}
		return nil
	})
	if err != nil {
		return AppendResult{}, classify("resolve thread", err)
	}
	return result, nil
}

func (w *ConversationWriter) compensate(ctx context.Context, d Decision) error {
	// the caller's context may be the reason the write failed
	ctx = context.WithoutCancel(ctx)

	if d.IsNew {
		logrus.WithField("thread_id", d.Thread.ID).Warn("[THREAD] Chat write failed, deleting new thread")
		if err := w.threads.Delete(ctx, d.Thread.ID); err != nil {
			return &pkgError.PersistenceError{Op: "compensate delete thread", Err: err}
		}
		return nil
	}

	logrus.WithField("thread_id", d.Thread.ID).Warn("[THREAD] Chat write failed, restoring thread snapshot")
	// only over our own write; a newer save from another writer is kept
	restore := d.Previous.Clone()
	restore.Version = d.Thread.Version
	if err := w.threads.Save(ctx, restore); err != nil {
		return &pkgError.PersistenceError{Op: "compensate restore thread", Err: err}
	}
	return nil
}

func (w *ConversationWriter) buildChat(t *threadDomain.Thread, ev event.MessageEvent) *chatDomain.Chat {
	now := w.now()
	createdAt := now
	if ev.Timestamp > 0 {
		createdAt = time.UnixMilli(ev.Timestamp).UTC()
	}

	c := &chatDomain.Chat{
		ID:            w.newID(),
		ThreadID:      t.ID,
		PhoneNumberID: ev.PhoneNumberID,
		MediaID:       ev.MediaID,
		MediaType:     ev.MediaType,
		MediaPath:     ev.MediaPath,
		Message:       ev.Body,
		Unread:        ev.IsInbound(),
		ReplyTo:       ev.ReplyTo,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	if ev.Wamid != "" {
		wamid := ev.Wamid
		c.Wamid = &wamid
	}
	if ev.IsInbound() {
		c.From = ev.ContactWaID
	} else {
		c.From = ev.PhoneNumberID
		c.RepliedBy = ev.AgentID
	}
	return c
}

// classify keeps typed errors and wraps everything else as a PersistenceError.
func classify(op string, err error) error {
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return err
	}
	return &pkgError.PersistenceError{Op: op, Err: err}
}
