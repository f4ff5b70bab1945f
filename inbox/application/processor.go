package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	chatDomain "github.com/AzielCF/az-wacloud/inbox/domain/chat"
	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	"github.com/sirupsen/logrus"
)

var (
	ErrVerificationRejected = errors.New("webhook verification rejected")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)

// Per-event results besides the status Outcome values.
const (
	ResultAppended  = "appended"
	ResultDuplicate = "duplicate"
	ResultDropped   = "dropped"
	ResultFailed    = "failed"
)

type EventOutcome struct {
	Index       int        `json:"index"`
	Kind        event.Kind `json:"kind"`
	Wamid       string     `json:"wamid,omitempty"`
	Result      string     `json:"result"`
	ThreadID    string     `json:"thread_id,omitempty"`
	IsNewThread bool       `json:"is_new_thread,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Report describes one webhook delivery. Processed is false only when the
// payload was rejected outright; per-event failures live in Outcomes.
type Report struct {
	Processed bool           `json:"processed"`
	Rejected  string         `json:"rejected,omitempty"`
	Outcomes  []EventOutcome `json:"outcomes"`
}

type ProcessorConfig struct {
	VerifyToken string
	AppSecret   string
}

type Processor struct {
	normalizer *Normalizer
	directory  *Directory
	writer     *ConversationWriter
	reconciler *StatusReconciler
	chats      chatDomain.Store
	cfg        ProcessorConfig
}

func NewProcessor(normalizer *Normalizer, directory *Directory, writer *ConversationWriter, reconciler *StatusReconciler, chats chatDomain.Store, cfg ProcessorConfig) *Processor {
	return &Processor{
		normalizer: normalizer,
		directory:  directory,
		writer:     writer,
		reconciler: reconciler,
		chats:      chats,
		cfg:        cfg,
	}
}

// ProcessWebhook handles the events of one delivery in order. It never fails:
// the provider must always get its acknowledgement.
func (p *Processor) ProcessWebhook(ctx context.Context, raw []byte) Report {
	normalized := p.normalizer.Normalize(raw)
	if normalized.Rejected != "" {
		logrus.Warnf("[WEBHOOK] Payload rejected: %s", normalized.Rejected)
		return Report{Rejected: normalized.Rejected, Outcomes: []EventOutcome{}}
	}

	report := Report{Processed: true, Outcomes: make([]EventOutcome, 0, len(normalized.Events))}
	for i, ev := range normalized.Events {
		out := p.processEvent(ctx, i, ev)
		if out.Result == ResultFailed {
			logrus.WithFields(logrus.Fields{
				"index": i,
				"kind":  out.Kind,
				"wamid": out.Wamid,
			}).Errorf("[WEBHOOK] Event failed: %s", out.Error)
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report
}

func (p *Processor) processEvent(ctx context.Context, index int, ev event.Event) (out EventOutcome) {
	out = EventOutcome{Index: index, Kind: ev.Kind}
	defer func() {
		if r := recover(); r != nil {
			out.Result = ResultFailed
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	switch ev.Kind {
	case event.KindMessage:
		p.processMessage(ctx, *ev.Message, &out)
	case event.KindStatus:
		out.Wamid = ev.Status.Wamid
		outcome, err := p.reconciler.ApplyStatus(ctx, *ev.Status)
		if err != nil {
			out.Result = ResultFailed
			out.Error = err.Error()
			return out
		}
		out.Result = string(outcome)
	default:
		out.Result = ResultFailed
		out.Error = fmt.Sprintf("unknown event kind %q", ev.Kind)
	}
	return out
}

func (p *Processor) processMessage(ctx context.Context, msg event.MessageEvent, out *EventOutcome) {
	out.Wamid = msg.Wamid

	res, err := p.directory.ResolveByPhoneNumberID(ctx, msg.PhoneNumberID)
	switch {
	case errors.Is(err, channelDomain.ErrInactive):
		logrus.Infof("[WEBHOOK] Dropping message %s for inactive config %s (channel %s)", msg.Wamid, res.WaConfig.WaBusinessID, res.Channel.Name)
		out.Result = ResultDropped
		out.Error = err.Error()
		return
	case errors.Is(err, channelDomain.ErrWaConfigNotFound), errors.Is(err, channelDomain.ErrNotFound):
		logrus.Infof("[WEBHOOK] Dropping message %s for unknown phone number id %s", msg.Wamid, msg.PhoneNumberID)
		out.Result = ResultDropped
		out.Error = err.Error()
		return
	case err != nil:
		out.Result = ResultFailed
		out.Error = err.Error()
		return
	}

	if msg.WaBusinessID == "" {
		msg.WaBusinessID = res.WaConfig.WaBusinessID
	}

	// the provider redelivers on timeouts
	if msg.Wamid != "" {
		if existing, err := p.chats.FindByWamid(ctx, msg.Wamid); err == nil {
			out.Result = ResultDuplicate
			out.ThreadID = existing.ThreadID
			return
		}
	}

	appended, err := p.writer.Append(ctx, msg)
	if errors.Is(err, chatDomain.ErrDuplicate) {
		// a concurrent delivery of the same wamid won the insert
		out.Result = ResultDuplicate
		if existing, findErr := p.chats.FindByWamid(ctx, msg.Wamid); findErr == nil {
			out.ThreadID = existing.ThreadID
		}
		return
	}
	if err != nil {
		out.Result = ResultFailed
		out.Error = err.Error()
		return
	}
	out.Result = ResultAppended
	out.ThreadID = appended.Thread.ID
	out.IsNewThread = appended.IsNewThread
}

// Verify answers the subscription handshake.
func (p *Processor) Verify(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || p.cfg.VerifyToken == "" || !hmac.Equal([]byte(token), []byte(p.cfg.VerifyToken)) {
		return "", ErrVerificationRejected
	}
	return challenge, nil
}

// VerifySignature checks X-Hub-Signature-256 when an app secret is configured.
func (p *Processor) VerifySignature(body []byte, header string) error {
	if p.cfg.AppSecret == "" {
		return nil
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(p.cfg.AppSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
