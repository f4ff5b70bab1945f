package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout     = 30 * time.Second
	maxErrorBody       = 64 * 1024
	defaultMaxDownload = 100 * 1024 * 1024
)

type Config struct {
	BaseURL         string // e.g. https://graph.facebook.com
	APIVersion      string // e.g. v21.0
	Timeout         time.Duration
	MaxDownloadSize int64
}

// Client talks to the WhatsApp Cloud API. Tokens are passed per call and never stored.
type Client struct {
	baseURL     string
	version     string
	httpClient  *http.Client
	maxDownload int64
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxDownload := cfg.MaxDownloadSize
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownload
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		version:     strings.Trim(cfg.APIVersion, "/"),
		httpClient:  httpClient,
		maxDownload: maxDownload,
	}
}

// --- Wire types ---

type OutboundMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Context          *MessageContext `json:"context,omitempty"`
	Text             *TextBody       `json:"text,omitempty"`
	Image            *MediaBody      `json:"image,omitempty"`
	Video            *MediaBody      `json:"video,omitempty"`
	Audio            *MediaBody      `json:"audio,omitempty"`
	Document         *MediaBody      `json:"document,omitempty"`
	Sticker          *MediaBody      `json:"sticker,omitempty"`
}

type MessageContext struct {
	MessageID string `json:"message_id"`
}

type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type MediaBody struct {
	ID       string `json:"id"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the wamid assigned to the sent message, if any.
func (r SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

type MediaFile struct {
	Filename string
	MimeType string
	Data     []byte
}

type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

func NewTextMessage(to, body, replyTo string) OutboundMessage {
	msg := OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextBody{Body: body},
	}
	if replyTo != "" {
		msg.Context = &MessageContext{MessageID: replyTo}
	}
	return msg
}

// NewMediaMessage references an uploaded media id. Unsupported media types
// fall back to document.
func NewMediaMessage(to, mediaType, mediaID, caption, filename, replyTo string) OutboundMessage {
	msg := OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             mediaType,
	}
	body := &MediaBody{ID: mediaID}
	switch mediaType {
	case "image":
		body.Caption = caption
		msg.Image = body
	case "video":
		body.Caption = caption
		msg.Video = body
	case "audio":
		msg.Audio = body
	case "sticker":
		msg.Sticker = body
	default:
		msg.Type = "document"
		body.Caption = caption
		body.Filename = filename
		msg.Document = body
	}
	if replyTo != "" {
		msg.Context = &MessageContext{MessageID: replyTo}
	}
	return msg
}

// --- Operations ---

func (c *Client) SendMessage(ctx context.Context, token, phoneNumberID string, msg OutboundMessage) (SendResponse, error) {
	var out SendResponse
	err := c.jsonRequest(ctx, http.MethodPost, c.endpoint(phoneNumberID, "messages"), token, msg, &out)
	return out, err
}

// MarkRead sends the read receipt for an inbound message.
func (c *Client) MarkRead(ctx context.Context, token, phoneNumberID, wamid string) error {
	body := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        wamid,
	}
	return c.jsonRequest(ctx, http.MethodPost, c.endpoint(phoneNumberID, "messages"), token, body, nil)
}

// writeMediaForm writes the multipart upload body to dst and returns its content type.
func writeMediaForm(dst io.Writer, file MediaFile) (string, error) {
	w := multipart.NewWriter(dst)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := w.WriteField("type", file.MimeType); err != nil {
		return "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Filename)))
	h.Set("Content-Type", file.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.FormDataContentType(), nil
}

// UploadMedia uploads a file and returns the media id to send by reference.
func (c *Client) UploadMedia(ctx context.Context, token, phoneNumberID string, file MediaFile) (string, error) {
	var buf bytes.Buffer
	contentType, err := writeMediaForm(&buf, file)
	if err != nil {
		return "", err
	}

	logrus.Debugf("[CLOUDAPI] Uploading %s (%s, %s) for %s", file.Filename, file.MimeType, humanize.Bytes(uint64(len(file.Data))), phoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(phoneNumberID, "media"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &pkgError.UpstreamError{Status: http.StatusOK, Body: "upload response carried no media id"}
	}
	return out.ID, nil
}

// GetMediaURL resolves a media id to its short-lived download URL.
func (c *Client) GetMediaURL(ctx context.Context, token, phoneNumberID, mediaID string) (MediaInfo, error) {
	u := c.endpoint(mediaID)
	if phoneNumberID != "" {
		u += "?phone_number_id=" + url.QueryEscape(phoneNumberID)
	}
	var out MediaInfo
	err := c.jsonRequest(ctx, http.MethodGet, u, token, nil, &out)
	return out, err
}

// DownloadMedia fetches the bytes behind a URL returned by GetMediaURL.
func (c *Client) DownloadMedia(ctx context.Context, token, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &pkgError.UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, transportError(err)
	}
	if int64(len(data)) > c.maxDownload {
		return nil, fmt.Errorf("media exceeds download limit of %s", humanize.Bytes(uint64(c.maxDownload)))
	}
	return data, nil
}

// --- Helpers ---

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + c.version + "/" + strings.Join(escaped, "/")
}

func (c *Client) jsonRequest(ctx context.Context, method, target, token string, body any, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &pkgError.UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}

	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return &pkgError.UpstreamError{Status: resp.StatusCode, Body: string(data), Err: err}
		}
	}
	return nil
}

// transportError maps client-side failures; timeouts are retryable.
func transportError(err error) error {
	var netErr net.Error
	retryable := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &pkgError.UpstreamError{Retryable: retryable, Err: err}
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
