package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-wacloud/core/database"
	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	threadDomain "github.com/AzielCF/az-wacloud/inbox/domain/thread"
	"github.com/AzielCF/az-wacloud/inbox/repository"
	"github.com/AzielCF/az-wacloud/pkg/crypto"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// flakyChatStore fails Create while failCreate is set.
type flakyChatStore struct {
	chatDomain.Store
	failCreate atomic.Bool
}

func (s *flakyChatStore) Create(ctx context.Context, c *chatDomain.Chat) error {
	if s.failCreate.Load() {
		return errors.New("chat store unavailable")
	}
	return s.Store.Create(ctx, c)
}

// brokenThreadStore fails Delete and Save, used to break compensation.
// findDelay widens the window between reading a thread and saving it.
type brokenThreadStore struct {
	threadDomain.Store
	broken    atomic.Bool
	findDelay time.Duration
}

func (s *brokenThreadStore) FindLatest(ctx context.Context, waBusinessID, contactWaID string) (*threadDomain.Thread, error) {
	t, err := s.Store.FindLatest(ctx, waBusinessID, contactWaID)
	if s.findDelay > 0 {
		time.Sleep(s.findDelay)
	}
	return t, err
}

func (s *brokenThreadStore) Delete(ctx context.Context, id string) error {
	if s.broken.Load() {
		return errors.New("thread store unavailable")
	}
	return s.Store.Delete(ctx, id)
}

func (s *brokenThreadStore) Save(ctx context.Context, t *threadDomain.Thread) error {
	if s.broken.Load() {
		return errors.New("thread store unavailable")
	}
	return s.Store.Save(ctx, t)
}

type testEnv struct {
	db         *gorm.DB
	channels   *repository.ChannelGormRepository
	threads    *brokenThreadStore
	chats      *flakyChatStore
	cipher     *crypto.Cipher
	directory  *Directory
	resolver   *ThreadResolver
	writer     *ConversationWriter
	reconciler *StatusReconciler
	processor  *Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)

	ctx := context.Background()
	channels := repository.NewChannelGormRepository(db)
	threads := repository.NewThreadGormRepository(db)
	chats := repository.NewChatGormRepository(db)
	require.NoError(t, channels.Init(ctx))
	require.NoError(t, threads.Init(ctx))
	require.NoError(t, chats.Init(ctx))

	cipher, err := crypto.NewCipher("test-secret-key")
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		channels: channels,
		threads:  &brokenThreadStore{Store: threads},
		chats:    &flakyChatStore{Store: chats},
		cipher:   cipher,
	}
	env.directory = NewDirectory(channels)
	env.resolver = NewThreadResolver(env.threads, repository.NoopLocker{})
	env.writer = NewConversationWriter(env.resolver, env.threads, env.chats)
	env.reconciler = NewStatusReconciler(env.chats)
	env.processor = NewProcessor(NewNormalizer(), env.directory, env.writer, env.reconciler, env.chats, ProcessorConfig{
		VerifyToken: "hub-token",
		AppSecret:   "app-secret",
	})
	return env
}

// useTransactions makes the resolver run every append in one transaction.
func (e *testEnv) useTransactions() {
	e.resolver.UseTransactions(repository.NewGormTransactor(e.db))
}

// seedConfig registers channel c1 with WABA W1 on phone number id P1.
func (e *testEnv) seedConfig(t *testing.T, active bool) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	token, err := e.cipher.Encrypt("EAAG-token")
	require.NoError(t, err)

	require.NoError(t, e.channels.Create(ctx, channelDomain.Channel{ID: "c1", CrmChannelID: "crm-1", Name: "Sales", Active: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, e.channels.SaveWaConfig(ctx, channelDomain.WaConfig{
		ID: "wc1", ChannelID: "c1", Active: active, Name: "Main",
		WaBusinessID: "W1", PhoneNumberID: "P1", DisplayPhoneNumber: "15550001",
		EncryptedToken: token, Participants: []string{"agent-1"},
		CreatedAt: now, UpdatedAt: now,
	}))
}

func inboundText(wamid, body string) event.MessageEvent {
	return event.MessageEvent{
		Direction:          event.DirectionInbound,
		Type:               "text",
		Body:               body,
		ContactWaID:        "628123",
		ContactName:        "Budi",
		PhoneNumberID:      "P1",
		DisplayPhoneNumber: "15550001",
		WaBusinessID:       "W1",
		Wamid:              wamid,
		Timestamp:          time.Now().UnixMilli(),
	}
}

func textWebhook(waba, phoneID, from, wamid, body, ts string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": %q,
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550001", "phone_number_id": %q},
					"contacts": [{"wa_id": %q, "profile": {"name": "Budi"}}],
					"messages": [{"from": %q, "id": %q, "timestamp": %q, "type": "text", "text": {"body": %q}}]
				}
			}]
		}]
	}`, waba, phoneID, from, from, wamid, ts, body))
}

func statusWebhook(wamid, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "W1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"display_phone_number": "15550001", "phone_number_id": "P1"},
					"statuses": [{"id": %q, "status": %q, "timestamp": "1714557600", "recipient_id": "628123"}]
				}
			}]
		}]
	}`, wamid, status))
}
