package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWebhook_InboundTextScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	ctx := context.Background()

	report := env.processor.ProcessWebhook(ctx, textWebhook("W1", "P1", "628123", "m1", "hola", "1714557600"))
	require.True(t, report.Processed)
	require.Len(t, report.Outcomes, 1)

	out := report.Outcomes[0]
	assert.Equal(t, event.KindMessage, out.Kind)
	assert.Equal(t, ResultAppended, out.Result)
	assert.True(t, out.IsNewThread)
	assert.NotEmpty(t, out.ThreadID)

	th, err := env.resolver.Resolve(ctx, "W1", "628123")
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.Equal(t, out.ThreadID, th.ID)

	c, err := env.chats.FindByWamid(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, c.Unread)

	report = env.processor.ProcessWebhook(ctx, statusWebhook("m1", "delivered"))
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, string(OutcomeIgnored), report.Outcomes[0].Result)

	report = env.processor.ProcessWebhook(ctx, statusWebhook("m1", "read"))
	assert.Equal(t, string(OutcomeApplied), report.Outcomes[0].Result)

	c, err = env.chats.FindByWamid(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, c.Unread)
}

func TestProcessWebhook_RedeliveryIsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	ctx := context.Background()
	payload := textWebhook("W1", "P1", "628123", "m1", "hola", "1714557600")

	first := env.processor.ProcessWebhook(ctx, payload)
	second := env.processor.ProcessWebhook(ctx, payload)

	assert.Equal(t, ResultAppended, first.Outcomes[0].Result)
	assert.Equal(t, ResultDuplicate, second.Outcomes[0].Result)
	assert.Equal(t, first.Outcomes[0].ThreadID, second.Outcomes[0].ThreadID)

	th, err := env.resolver.Resolve(ctx, "W1", "628123")
	require.NoError(t, err)
	assert.Equal(t, 1, th.UnreadCount)
}

// missingWamidStore never finds a wamid, as when two deliveries of the same
// message check for it before either has been stored.
type missingWamidStore struct {
	chatDomain.Store
}

func (missingWamidStore) FindByWamid(context.Context, string) (*chatDomain.Chat, error) {
	return nil, chatDomain.ErrNotFound
}

func TestProcessWebhook_ConcurrentRedeliveryIsDuplicate(t *testing.T) {
	for _, transactional := range []bool{false, true} {
		t.Run(fmt.Sprintf("transactional=%v", transactional), func(t *testing.T) {
			env := newTestEnv(t)
			if transactional {
				env.useTransactions()
			}
			env.seedConfig(t, true)
			ctx := context.Background()
			processor := NewProcessor(NewNormalizer(), env.directory, env.writer, env.reconciler, missingWamidStore{env.chats}, ProcessorConfig{VerifyToken: "hub-token"})
			payload := textWebhook("W1", "P1", "628123", "m1", "hola", "1714557600")

			first := processor.ProcessWebhook(ctx, payload)
			second := processor.ProcessWebhook(ctx, payload)

			assert.Equal(t, ResultAppended, first.Outcomes[0].Result)
			assert.Equal(t, ResultDuplicate, second.Outcomes[0].Result)
			assert.Empty(t, second.Outcomes[0].Error)

			th, err := env.resolver.Resolve(ctx, "W1", "628123")
			require.NoError(t, err)
			assert.Equal(t, 1, th.UnreadCount)
		})
	}
}

func TestProcessWebhook_DropsUnknownAndInactive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report := env.processor.ProcessWebhook(ctx, textWebhook("W9", "P9", "628123", "m1", "hola", "1714557600"))
	require.True(t, report.Processed)
	assert.Equal(t, ResultDropped, report.Outcomes[0].Result)

	env.seedConfig(t, false)
	report = env.processor.ProcessWebhook(ctx, textWebhook("W1", "P1", "628123", "m2", "hola", "1714557600"))
	assert.Equal(t, ResultDropped, report.Outcomes[0].Result)

	th, err := env.resolver.Resolve(ctx, "W1", "628123")
	require.NoError(t, err)
	assert.Nil(t, th)
}

func TestProcessWebhook_FailuresStayInOutcome(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	env.chats.failCreate.Store(true)

	report := env.processor.ProcessWebhook(context.Background(), textWebhook("W1", "P1", "628123", "m1", "hola", "1714557600"))
	require.True(t, report.Processed)
	assert.Equal(t, ResultFailed, report.Outcomes[0].Result)
	assert.Contains(t, report.Outcomes[0].Error, "create chat")
}

func TestProcessWebhook_Rejected(t *testing.T) {
	env := newTestEnv(t)
	report := env.processor.ProcessWebhook(context.Background(), []byte(`{"object":"whatsapp_business_account"}`))
	assert.False(t, report.Processed)
	assert.Equal(t, "missing entry", report.Rejected)
	assert.Empty(t, report.Outcomes)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)

	challenge, err := env.processor.Verify("subscribe", "hub-token", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", challenge)

	_, err = env.processor.Verify("subscribe", "wrong", "12345")
	assert.ErrorIs(t, err, ErrVerificationRejected)

	_, err = env.processor.Verify("unsubscribe", "hub-token", "12345")
	assert.ErrorIs(t, err, ErrVerificationRejected)

	empty := NewProcessor(NewNormalizer(), nil, nil, nil, nil, ProcessorConfig{})
	_, err = empty.Verify("subscribe", "", "12345")
	assert.ErrorIs(t, err, ErrVerificationRejected)
}

func TestVerifySignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, env.processor.VerifySignature(body, valid))
	assert.ErrorIs(t, env.processor.VerifySignature(body, "sha256=00ff"), ErrInvalidSignature)
	assert.ErrorIs(t, env.processor.VerifySignature(body, "sha256=zz"), ErrInvalidSignature)
	assert.ErrorIs(t, env.processor.VerifySignature(body, ""), ErrInvalidSignature)

	open := NewProcessor(NewNormalizer(), nil, nil, nil, nil, ProcessorConfig{})
	assert.NoError(t, open.VerifySignature(body, ""))
}
