package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	"github.com/AzielCF/az-wacloud/inbox/domain/outbound"
	"github.com/AzielCF/az-wacloud/integrations/cloudapi"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/AzielCF/az-wacloud/validations"
	"github.com/sirupsen/logrus"
)

// CloudAPI is the slice of the WhatsApp Cloud API the dispatcher calls.
type CloudAPI interface {
	SendMessage(ctx context.Context, token, phoneNumberID string, msg cloudapi.OutboundMessage) (cloudapi.SendResponse, error)
	UploadMedia(ctx context.Context, token, phoneNumberID string, file cloudapi.MediaFile) (string, error)
	MarkRead(ctx context.Context, token, phoneNumberID, wamid string) error
}

// TokenDecrypter turns a stored ciphertext into the bearer token.
type TokenDecrypter interface {
	Decrypt(cipherText string) (string, error)
}

// Dispatcher sends agent messages through the Cloud API. Failures upstream
// are returned to the caller; local history writes after a successful send
// are best effort.
type Dispatcher struct {
	directory     *Directory
	secrets       TokenDecrypter
	api           CloudAPI
	writer        *ConversationWriter
	reconciler    *StatusReconciler
	maxUploadSize int64
	now           func() time.Time
}

func NewDispatcher(directory *Directory, secrets TokenDecrypter, api CloudAPI, writer *ConversationWriter, reconciler *StatusReconciler, maxUploadSize int64) *Dispatcher {
	return &Dispatcher{
		directory:     directory,
		secrets:       secrets,
		api:           api,
		writer:        writer,
		reconciler:    reconciler,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

func (d *Dispatcher) SendText(ctx context.Context, req outbound.SendTextRequest) (outbound.SendResult, error) {
	utils.SanitizePhone(&req.To)
	if err := validations.ValidateSendText(ctx, req); err != nil {
		return outbound.SendResult{}, err
	}
	cfg, token, err := d.credentials(ctx, req.WaBusinessID)
	if err != nil {
		return outbound.SendResult{}, err
	}

	resp, err := d.api.SendMessage(ctx, token, cfg.PhoneNumberID, cloudapi.NewTextMessage(req.To, req.Text, req.ReplyTo))
	if err != nil {
		return outbound.SendResult{}, err
	}

	result := outbound.SendResult{Wamid: resp.MessageID()}
	d.record(ctx, cfg, event.MessageEvent{
		Type:        "text",
		Body:        req.Text,
		ContactWaID: req.To,
		ReplyTo:     req.ReplyTo,
		Wamid:       result.Wamid,
	}, req.Agent, &result)
	return result, nil
}

// SendMedia uploads first and sends by media id; an upload failure stops there.
func (d *Dispatcher) SendMedia(ctx context.Context, req outbound.SendMediaRequest) (outbound.SendResult, error) {
	utils.SanitizePhone(&req.To)
	if err := validations.ValidateSendMedia(ctx, req, d.maxUploadSize); err != nil {
		return outbound.SendResult{}, err
	}
	cfg, token, err := d.credentials(ctx, req.WaBusinessID)
	if err != nil {
		return outbound.SendResult{}, err
	}

	mediaID, err := d.api.UploadMedia(ctx, token, cfg.PhoneNumberID, cloudapi.MediaFile{
		Filename: req.Filename,
		MimeType: req.MimeType,
		Data:     req.Data,
	})
	if err != nil {
		return outbound.SendResult{}, fmt.Errorf("upload media: %w", err)
	}

	msg := cloudapi.NewMediaMessage(req.To, req.MediaType, mediaID, req.Caption, req.Filename, req.ReplyTo)
	resp, err := d.api.SendMessage(ctx, token, cfg.PhoneNumberID, msg)
	if err != nil {
		return outbound.SendResult{}, err
	}

	body := req.Caption
	if body == "" {
		body = defaultMediaBody(msg.Type, req.Filename)
	}
	result := outbound.SendResult{Wamid: resp.MessageID()}
	d.record(ctx, cfg, event.MessageEvent{
		Type:        msg.Type,
		Body:        body,
		MediaID:     mediaID,
		MediaType:   msg.Type,
		MediaPath:   req.Filename,
		ContactWaID: req.To,
		ReplyTo:     req.ReplyTo,
		Wamid:       result.Wamid,
	}, req.Agent, &result)
	return result, nil
}

// SendReadReceipt acknowledges wamid upstream, then marks the local history
// read. The local step cannot fail the call.
func (d *Dispatcher) SendReadReceipt(ctx context.Context, req outbound.ReadReceiptRequest) (outbound.ReadReceiptResult, error) {
	if err := validations.ValidateReadReceipt(ctx, req); err != nil {
		return outbound.ReadReceiptResult{}, err
	}
	cfg, token, err := d.credentials(ctx, req.WaBusinessID)
	if err != nil {
		return outbound.ReadReceiptResult{}, err
	}

	if err := d.api.MarkRead(ctx, token, cfg.PhoneNumberID, req.Wamid); err != nil {
		return outbound.ReadReceiptResult{}, err
	}

	result := outbound.ReadReceiptResult{Wamid: req.Wamid}
	n, err := d.reconciler.MarkReadUpTo(ctx, req.Wamid)
	if err != nil {
		logrus.WithError(err).WithField("wamid", req.Wamid).Warn("[DISPATCH] Local read cascade failed")
		return result, nil
	}
	result.MarkedLocal = n
	return result, nil
}

// credentials resolves the config for a WABA and decrypts its token.
func (d *Dispatcher) credentials(ctx context.Context, waBusinessID string) (channelDomain.WaConfig, string, error) {
	return resolveCredentials(ctx, d.directory, d.secrets, waBusinessID)
}

func resolveCredentials(ctx context.Context, directory *Directory, secrets TokenDecrypter, waBusinessID string) (channelDomain.WaConfig, string, error) {
	cfg, err := directory.ResolveByWaBusinessID(ctx, waBusinessID)
	switch {
	case errors.Is(err, channelDomain.ErrWaConfigNotFound):
		return cfg, "", pkgError.NotFoundError(fmt.Sprintf("no whatsapp config for %s", waBusinessID))
	case errors.Is(err, channelDomain.ErrInactive):
		return cfg, "", pkgError.ValidationError(fmt.Sprintf("whatsapp config %s is inactive", waBusinessID))
	case err != nil:
		return cfg, "", err
	}

	token, err := secrets.Decrypt(cfg.EncryptedToken)
	if err != nil {
		logrus.WithError(err).WithField("waba_id", waBusinessID).Error("[DISPATCH] Cannot decrypt access token")
		return cfg, "", pkgError.InternalServerError("cannot decrypt access token")
	}
	return cfg, token, nil
}

// record appends the sent message to the thread history.
func (d *Dispatcher) record(ctx context.Context, cfg channelDomain.WaConfig, ev event.MessageEvent, agent outbound.Agent, result *outbound.SendResult) {
	ev.Direction = event.DirectionOutbound
	ev.WaBusinessID = cfg.WaBusinessID
	ev.PhoneNumberID = cfg.PhoneNumberID
	ev.DisplayPhoneNumber = cfg.DisplayPhoneNumber
	ev.Timestamp = d.now().UnixMilli()
	ev.AgentID = agent.ID
	ev.AgentName = agent.Name
	ev.AgentAvatar = agent.Avatar

	appended, err := d.writer.Append(ctx, ev)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"wamid": ev.Wamid,
			"to":    ev.ContactWaID,
		}).Warn("[DISPATCH] Message sent but not recorded in thread history")
		return
	}
	result.ThreadID = appended.Thread.ID
	result.Chat = appended.Chat
}
