package application

import (
	"context"
	"errors"
	"testing"

	"github.com/AzielCF/az-wacloud/inbox/domain/outbound"
	"github.com/AzielCF/az-wacloud/integrations/cloudapi"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCloudAPI struct {
	mock.Mock
}

func (m *mockCloudAPI) SendMessage(ctx context.Context, token, phoneNumberID string, msg cloudapi.OutboundMessage) (cloudapi.SendResponse, error) {
	args := m.Called(ctx, token, phoneNumberID, msg)
	return args.Get(0).(cloudapi.SendResponse), args.Error(1)
}

func (m *mockCloudAPI) UploadMedia(ctx context.Context, token, phoneNumberID string, file cloudapi.MediaFile) (string, error) {
	args := m.Called(ctx, token, phoneNumberID, file)
	return args.String(0), args.Error(1)
}

func (m *mockCloudAPI) MarkRead(ctx context.Context, token, phoneNumberID, wamid string) error {
	args := m.Called(ctx, token, phoneNumberID, wamid)
	return args.Error(0)
}

func sentResponse(wamid string) cloudapi.SendResponse {
	var resp cloudapi.SendResponse
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: wamid})
	return resp
}

func newDispatcher(env *testEnv, api CloudAPI) *Dispatcher {
	return NewDispatcher(env.directory, env.cipher, api, env.writer, env.reconciler, 1024)
}

func TestSendText_RecordsOutboundChat(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	ctx := context.Background()

	api := new(mockCloudAPI)
	api.On("SendMessage", mock.Anything, "EAAG-token", "P1", cloudapi.NewTextMessage("628123", "hello", "")).
		Return(sentResponse("wamid.OUT1"), nil).Once()

	res, err := newDispatcher(env, api).SendText(ctx, outbound.SendTextRequest{
		WaBusinessID: "W1",
		To:           "+62 8123",
		Text:         "hello",
		Agent:        outbound.Agent{ID: "agent-1", Name: "Ana"},
	})
	require.NoError(t, err)
	api.AssertExpectations(t)

	assert.Equal(t, "wamid.OUT1", res.Wamid)
	require.NotNil(t, res.Chat)
	assert.False(t, res.Chat.Unread)

	th, err := env.resolver.Resolve(ctx, "W1", "628123")
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.Equal(t, res.ThreadID, th.ID)
	assert.Equal(t, "agent-1", th.HandledBy)
	assert.Equal(t, 0, th.UnreadCount)
}

func TestSendText_UpstreamErrorIsReturnedVerbatim(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)

	upstream := &pkgError.UpstreamError{Status: 400, Body: `{"error":{"message":"Invalid parameter"}}`}
	api := new(mockCloudAPI)
	api.On("SendMessage", mock.Anything, "EAAG-token", "P1", mock.Anything).
		Return(cloudapi.SendResponse{}, upstream).Once()

	_, err := newDispatcher(env, api).SendText(context.Background(), outbound.SendTextRequest{WaBusinessID: "W1", To: "628123", Text: "hello"})
	var got *pkgError.UpstreamError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, upstream.Body, got.Body)

	th, err := env.resolver.Resolve(context.Background(), "W1", "628123")
	require.NoError(t, err)
	assert.Nil(t, th)
}

func TestSendText_UnknownAndInactiveConfig(t *testing.T) {
	env := newTestEnv(t)
	api := new(mockCloudAPI)
	d := newDispatcher(env, api)

	_, err := d.SendText(context.Background(), outbound.SendTextRequest{WaBusinessID: "W1", To: "628123", Text: "hello"})
	var notFound pkgError.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	env.seedConfig(t, false)
	_, err = d.SendText(context.Background(), outbound.SendTextRequest{WaBusinessID: "W1", To: "628123", Text: "hello"})
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)

	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMedia_UploadThenSend(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)

	file := cloudapi.MediaFile{Filename: "pic.png", MimeType: "image/png", Data: []byte("PNG")}
	api := new(mockCloudAPI)
	api.On("UploadMedia", mock.Anything, "EAAG-token", "P1", file).Return("media-1", nil).Once()
	api.On("SendMessage", mock.Anything, "EAAG-token", "P1", cloudapi.NewMediaMessage("628123", "image", "media-1", "look", "pic.png", "")).
		Return(sentResponse("wamid.OUT2"), nil).Once()

	res, err := newDispatcher(env, api).SendMedia(context.Background(), outbound.SendMediaRequest{
		WaBusinessID: "W1", To: "628123", MediaType: "image", Caption: "look",
		Filename: "pic.png", MimeType: "image/png", Data: []byte("PNG"),
	})
	require.NoError(t, err)
	api.AssertExpectations(t)

	require.NotNil(t, res.Chat)
	assert.Equal(t, "media-1", res.Chat.MediaID)
	assert.Equal(t, "image", res.Chat.MediaType)
	assert.Equal(t, "look", res.Chat.Message)
}

func TestSendMedia_UploadFailureStops(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)

	api := new(mockCloudAPI)
	api.On("UploadMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", &pkgError.UpstreamError{Status: 413, Body: "too large"}).Once()

	_, err := newDispatcher(env, api).SendMedia(context.Background(), outbound.SendMediaRequest{
		WaBusinessID: "W1", To: "628123", MediaType: "document",
		Filename: "a.pdf", MimeType: "application/pdf", Data: []byte("PDF"),
	})
	var upstream *pkgError.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 413, upstream.Status)
	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMedia_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	api := new(mockCloudAPI)

	_, err := newDispatcher(env, api).SendMedia(context.Background(), outbound.SendMediaRequest{
		WaBusinessID: "W1", To: "628123", MediaType: "image",
		Filename: "big.png", MimeType: "image/png", Data: make([]byte, 2048),
	})
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestSendReadReceipt_CascadesLocally(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	ctx := context.Background()

	_, err := env.writer.Append(ctx, inboundText("m1", "hola"))
	require.NoError(t, err)

	api := new(mockCloudAPI)
	api.On("MarkRead", mock.Anything, "EAAG-token", "P1", "m1").Return(nil).Once()

	res, err := newDispatcher(env, api).SendReadReceipt(ctx, outbound.ReadReceiptRequest{WaBusinessID: "W1", Wamid: "m1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MarkedLocal)

	c, err := env.chats.FindByWamid(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, c.Unread)
}

func TestSendReadReceipt_LocalFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)

	api := new(mockCloudAPI)
	api.On("MarkRead", mock.Anything, "EAAG-token", "P1", "unknown").Return(nil).Once()

	res, err := newDispatcher(env, api).SendReadReceipt(context.Background(), outbound.ReadReceiptRequest{WaBusinessID: "W1", Wamid: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.MarkedLocal)
}

func TestSendReadReceipt_RemoteFailureIsReturned(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)

	api := new(mockCloudAPI)
	api.On("MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&pkgError.UpstreamError{Retryable: true, Err: context.DeadlineExceeded}).Once()

	_, err := newDispatcher(env, api).SendReadReceipt(context.Background(), outbound.ReadReceiptRequest{WaBusinessID: "W1", Wamid: "m1"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingDecrypter struct{}

func (failingDecrypter) Decrypt(string) (string, error) { return "", errors.New("bad key") }

func TestSendText_DecryptFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig(t, true)
	api := new(mockCloudAPI)

	d := NewDispatcher(env.directory, failingDecrypter{}, api, env.writer, env.reconciler, 0)
	_, err := d.SendText(context.Background(), outbound.SendTextRequest{WaBusinessID: "W1", To: "628123", Text: "x"})
	var internal pkgError.InternalServerError
	assert.ErrorAs(t, err, &internal)
}
