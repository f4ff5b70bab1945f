package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AzielCF/az-wacloud/core/database"
	"github.com/AzielCF/az-wacloud/inbox/application"
	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"github.com/AzielCF/az-wacloud/inbox/repository"
	"github.com/AzielCF/az-wacloud/inbox/usecase"
	"github.com/AzielCF/az-wacloud/integrations/cloudapi"
	"github.com/AzielCF/az-wacloud/pkg/crypto"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/msgworker"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/AzielCF/az-wacloud/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudAPI struct {
	sendErr error
	sent    []cloudapi.OutboundMessage
	uploads []cloudapi.MediaFile
}

func (f *fakeCloudAPI) SendMessage(_ context.Context, _, _ string, msg cloudapi.OutboundMessage) (cloudapi.SendResponse, error) {
	if f.sendErr != nil {
		return cloudapi.SendResponse{}, f.sendErr
	}
	f.sent = append(f.sent, msg)
	var resp cloudapi.SendResponse
	if err := json.Unmarshal([]byte(`{"messages":[{"id":"wamid.OUT"}]}`), &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (f *fakeCloudAPI) UploadMedia(_ context.Context, _, _ string, file cloudapi.MediaFile) (string, error) {
	f.uploads = append(f.uploads, file)
	return "media-1", nil
}

func (f *fakeCloudAPI) MarkRead(context.Context, string, string, string) error { return nil }

func (f *fakeCloudAPI) GetMediaURL(_ context.Context, _, _, mediaID string) (cloudapi.MediaInfo, error) {
	return cloudapi.MediaInfo{ID: mediaID, URL: "https://lookaside.example/" + mediaID, MimeType: "image/jpeg"}, nil
}

func (f *fakeCloudAPI) DownloadMedia(context.Context, string, string) ([]byte, error) {
	return []byte("JPEG"), nil
}

type server struct {
	app      *fiber.App
	api      *fakeCloudAPI
	channels *usecase.ChannelService
	pool     *msgworker.Pool
}

func newServer(t *testing.T, withPool bool) *server {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	channelRepo := repository.NewChannelGormRepository(db)
	threadRepo := repository.NewThreadGormRepository(db)
	chatRepo := repository.NewChatGormRepository(db)
	require.NoError(t, channelRepo.Init(ctx))
	require.NoError(t, threadRepo.Init(ctx))
	require.NoError(t, chatRepo.Init(ctx))

	cipher, err := crypto.NewCipher("test-secret-key")
	require.NoError(t, err)

	directory := application.NewDirectory(channelRepo)
	resolver := application.NewThreadResolver(threadRepo, repository.NoopLocker{}).
		UseTransactions(repository.NewGormTransactor(db))
	writer := application.NewConversationWriter(resolver, threadRepo, chatRepo)
	reconciler := application.NewStatusReconciler(chatRepo)
	processor := application.NewProcessor(application.NewNormalizer(), directory, writer, reconciler, chatRepo, application.ProcessorConfig{
		VerifyToken: "hub-token",
		AppSecret:   "app-secret",
	})
	api := &fakeCloudAPI{}
	dispatcher := application.NewDispatcher(directory, cipher, api, writer, reconciler, 1<<20)

	s := &server{api: api, channels: usecase.NewChannelService(channelRepo, cipher)}
	if withPool {
		s.pool = msgworker.NewPool(2, 10)
		poolCtx, cancel := context.WithCancel(ctx)
		s.pool.Start(poolCtx)
		t.Cleanup(func() {
			cancel()
			s.pool.Stop()
		})
	}

	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestWebhook(app, processor, s.pool)
	apiGroup := app.Group("/api")
	InitRestChannel(apiGroup, s.channels, directory)
	InitRestThread(apiGroup, resolver, chatRepo)
	InitRestSend(apiGroup, dispatcher, 1<<20)
	InitRestMedia(apiGroup, application.NewMediaFetcher(directory, cipher, api))
	InitRestWorkerPool(apiGroup, s.pool)
	InitRestHealth(apiGroup, db, nil, map[string]any{"db_driver": "sqlite"})
	s.app = app
	return s
}

func (s *server) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	ch, err := s.channels.CreateChannel(ctx, channelDomain.CreateChannelRequest{CrmChannelID: "crm-1", Name: "Sales"})
	require.NoError(t, err)
	_, err = s.channels.AddWaConfig(ctx, channelDomain.AddWaConfigRequest{
		ChannelID: ch.ID, WaBusinessID: "W1", PhoneNumberID: "P1",
		DisplayPhoneNumber: "15550001", AccessToken: "EAAG-token",
	})
	require.NoError(t, err)
}

func (s *server) do(t *testing.T, req *http.Request) (int, utils.ResponseData) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body utils.ResponseData
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const inboundPayload = `{"object":"whatsapp_business_account","entry":[{"id":"W1","changes":[{"field":"messages","value":{
	"metadata":{"display_phone_number":"15550001","phone_number_id":"P1"},
	"contacts":[{"wa_id":"628123","profile":{"name":"Budi"}}],
	"messages":[{"from":"628123","id":"m1","timestamp":"1714557600","type":"text","text":{"body":"hola"}}]}}]}]}`

func TestWebhook_Verify(t *testing.T) {
	s := newServer(t, false)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=hub-token&hub.challenge=42", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", string(raw))

	status, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	s := newServer(t, false)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(inboundPayload))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")

	status, _ := s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWebhook_ReceiveThenReadThread(t *testing.T) {
	s := newServer(t, true)
	s.seed(t)

	body := []byte(inboundPayload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EVENT_RECEIVED", string(raw))

	require.Eventually(t, func() bool {
		return s.pool.Stats().TotalProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), s.pool.Stats().TotalErrors)

	status, res := s.do(t, httptest.NewRequest(http.MethodGet, "/api/threads/W1/628123", nil))
	require.Equal(t, http.StatusOK, status)
	history := res.Results.(map[string]any)
	assert.Equal(t, "628123", history["thread"].(map[string]any)["contact_wa_id"])
	assert.Len(t, history["chats"], 1)

	status, res = s.do(t, httptest.NewRequest(http.MethodGet, "/api/system/workers", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, res.Results)
}

func TestThread_NotFound(t *testing.T) {
	s := newServer(t, false)
	status, res := s.do(t, httptest.NewRequest(http.MethodGet, "/api/threads/W1/628123", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestChannel_CreateAndConflict(t *testing.T) {
	s := newServer(t, false)
	payload := `{"crm_channel_id":"crm-1","name":"Sales"}`

	req := httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	status, _ := s.do(t, req)
	assert.Equal(t, http.StatusCreated, status)

	req = httptest.NewRequest(http.MethodPost, "/api/channels", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	status, res := s.do(t, req)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT_ERROR", res.Code)

	status, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/channels/missing", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSend_Text(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	req := httptest.NewRequest(http.MethodPost, "/api/send/text", bytes.NewBufferString(`{"wa_business_id":"W1","to":"+62 8123","text":"hello","agent_id":"agent-1"}`))
	req.Header.Set("Content-Type", "application/json")
	status, res := s.do(t, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "wamid.OUT", res.Results.(map[string]any)["wamid"])
	require.Len(t, s.api.sent, 1)
	assert.Equal(t, "628123", s.api.sent[0].To)
}

func TestSend_UpstreamErrorBodyIsKept(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)
	s.api.sendErr = &pkgError.UpstreamError{Status: 400, Body: `{"error":{"code":131030}}`}

	req := httptest.NewRequest(http.MethodPost, "/api/send/text", bytes.NewBufferString(`{"wa_business_id":"W1","to":"628123","text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	status, res := s.do(t, req)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "UPSTREAM_ERROR", res.Code)
	assert.Equal(t, `{"error":{"code":131030}}`, res.Results.(map[string]any)["upstream_body"])
}

func TestSend_MediaMultipart(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("wa_business_id", "W1"))
	require.NoError(t, w.WriteField("to", "628123"))
	require.NoError(t, w.WriteField("media_type", "document"))
	require.NoError(t, w.WriteField("mime_type", "application/pdf"))
	part, err := w.CreateFormFile("file", "invoice.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/send/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	status, res := s.do(t, req)
	require.Equal(t, http.StatusOK, status, res.Message)

	require.Len(t, s.api.uploads, 1)
	assert.Equal(t, "invoice.pdf", s.api.uploads[0].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), s.api.uploads[0].Data)
	require.Len(t, s.api.sent, 1)
	assert.Equal(t, "document", s.api.sent[0].Type)
}

func TestWebhook_FullQueueStillAcknowledges(t *testing.T) {
	s := newServer(t, true)
	s.seed(t)
	// a stopped pool rejects every dispatch, same as a full queue
	s.pool.Stop()

	body := []byte(inboundPayload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EVENT_RECEIVED", string(raw))
	assert.Equal(t, int64(1), s.pool.Stats().TotalDropped)

	// processed inline before the response
	status, res := s.do(t, httptest.NewRequest(http.MethodGet, "/api/threads/W1/628123", nil))
	require.Equal(t, http.StatusOK, status, res.Message)
}

func TestWorkerPool_Unavailable(t *testing.T) {
	s := newServer(t, false)
	status, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/system/workers", nil))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMedia_Download(t *testing.T) {
	s := newServer(t, false)
	s.seed(t)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/api/media/W1/media-9", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "JPEG", string(raw))

	status, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/media/W9/media-9", nil))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth_DatabaseOnly(t *testing.T) {
	s := newServer(t, false)

	status, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/system/health", nil))
	assert.Equal(t, http.StatusOK, status)
	results, ok := body.Results.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", results["database"])
	assert.Equal(t, "disabled", results["valkey"])
}
