package usecase

import (
	"context"
	"testing"

	"github.com/AzielCF/az-wacloud/core/database"
	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"github.com/AzielCF/az-wacloud/inbox/repository"
	"github.com/AzielCF/az-wacloud/pkg/crypto"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*ChannelService, *crypto.Cipher) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)

	store := repository.NewChannelGormRepository(db)
	require.NoError(t, store.Init(context.Background()))

	cipher, err := crypto.NewCipher("test-secret-key")
	require.NoError(t, err)
	return NewChannelService(store, cipher), cipher
}

func wabaRequest(channelID, waba string) channelDomain.AddWaConfigRequest {
	return channelDomain.AddWaConfigRequest{
		ChannelID:          channelID,
		Name:               "Main line",
		WaBusinessID:       waba,
		PhoneNumberID:      "P-" + waba,
		DisplayPhoneNumber: "15550001",
		AccessToken:        "EAAG-token",
		Participants:       []string{"agent-1", " agent-2 "},
	}
}

func TestCreateChannel(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	ch, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: " crm-1 ", Name: "Sales"})
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, "crm-1", ch.CrmChannelID)
	assert.True(t, ch.Active)

	_, err = svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Other"})
	var conflict pkgError.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{Name: "No crm id"})
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)

	inactive := false
	ch2, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-2", Name: "Support", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, ch2.Active)

	all, err := svc.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetAndDeleteChannel_NotFound(t *testing.T) {
	svc, _ := newService(t)
	var notFound pkgError.NotFoundError

	_, err := svc.GetChannel(context.Background(), "missing")
	assert.ErrorAs(t, err, &notFound)
	assert.ErrorAs(t, svc.DeleteChannel(context.Background(), "missing"), &notFound)
}

func TestAddWaConfig_EncryptsToken(t *testing.T) {
	svc, cipher := newService(t)
	ctx := context.Background()
	ch, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Sales"})
	require.NoError(t, err)

	cfg, err := svc.AddWaConfig(ctx, wabaRequest(ch.ID, "W1"))
	require.NoError(t, err)
	assert.True(t, cfg.Active)
	assert.NotEqual(t, "EAAG-token", cfg.EncryptedToken)
	assert.Equal(t, []string{"agent-1", "agent-2"}, cfg.Participants)

	plain, err := cipher.Decrypt(cfg.EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-token", plain)

	got, err := svc.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	require.Contains(t, got.WaConfigs, "W1")
	assert.Equal(t, "P-W1", got.WaConfigs["W1"].PhoneNumberID)
}

func TestAddWaConfig_ReRegisterRotatesToken(t *testing.T) {
	svc, cipher := newService(t)
	ctx := context.Background()
	ch, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Sales"})
	require.NoError(t, err)

	first, err := svc.AddWaConfig(ctx, wabaRequest(ch.ID, "W1"))
	require.NoError(t, err)

	req := wabaRequest(ch.ID, "W1")
	req.AccessToken = "EAAG-rotated"
	second, err := svc.AddWaConfig(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, got.WaConfigs, 1)
	plain, err := cipher.Decrypt(got.WaConfigs["W1"].EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-rotated", plain)
}

func TestAddWaConfig_Errors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	sales, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Sales"})
	require.NoError(t, err)
	support, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-2", Name: "Support"})
	require.NoError(t, err)

	_, err = svc.AddWaConfig(ctx, wabaRequest(sales.ID, "W1"))
	require.NoError(t, err)

	_, err = svc.AddWaConfig(ctx, wabaRequest(support.ID, "W1"))
	var conflict pkgError.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = svc.AddWaConfig(ctx, wabaRequest("missing", "W2"))
	var notFound pkgError.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	noToken := wabaRequest(sales.ID, "W3")
	noToken.AccessToken = "  "
	_, err = svc.AddWaConfig(ctx, noToken)
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestSetActiveAndRemoveWaConfig(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ch, err := svc.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Sales"})
	require.NoError(t, err)
	_, err = svc.AddWaConfig(ctx, wabaRequest(ch.ID, "W1"))
	require.NoError(t, err)

	cfg, err := svc.SetWaConfigActive(ctx, ch.ID, "W1", false)
	require.NoError(t, err)
	assert.False(t, cfg.Active)

	got, err := svc.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.WaConfigs["W1"].Active)

	var notFound pkgError.NotFoundError
	_, err = svc.SetWaConfigActive(ctx, ch.ID, "W9", true)
	assert.ErrorAs(t, err, &notFound)

	require.NoError(t, svc.RemoveWaConfig(ctx, ch.ID, "W1"))
	assert.ErrorAs(t, svc.RemoveWaConfig(ctx, ch.ID, "W1"), &notFound)
}
