package application

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-wacloud/inbox/domain/event"
)

const whatsappBusinessObject = "whatsapp_business_account"

// --- Provider payload ---

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"` // WABA id
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
	Statuses []webhookStatus  `json:"statuses"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Context   *struct {
		ID string `json:"id"`
	} `json:"context,omitempty"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image       *mediaObject `json:"image,omitempty"`
	Video       *mediaObject `json:"video,omitempty"`
	Audio       *mediaObject `json:"audio,omitempty"`
	Document    *mediaObject `json:"document,omitempty"`
	Sticker     *mediaObject `json:"sticker,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
}

type mediaObject struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// --- Normalizer ---

// Normalized is the result of parsing one webhook delivery. Rejected is set
// only when the payload as a whole was unusable; Events is then empty.
type Normalized struct {
	Events   []event.Event
	Rejected string
}

type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize never fails; malformed payloads come back with a rejection reason.
func (n *Normalizer) Normalize(raw []byte) Normalized {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Normalized{Rejected: fmt.Sprintf("invalid json: %v", err)}
	}
	if payload.Object != whatsappBusinessObject {
		return Normalized{Rejected: fmt.Sprintf("unexpected object %q", payload.Object)}
	}
	if payload.Entry == nil {
		return Normalized{Rejected: "missing entry"}
	}

	receivedAt := n.now()
	events := make([]event.Event, 0)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, msg := range v.Messages {
				ev := n.messageEvent(entry.ID, v, msg, receivedAt)
				events = append(events, event.NewMessage(ev))
			}
			for _, st := range v.Statuses {
				events = append(events, event.NewStatus(event.StatusEvent{
					Wamid:         st.ID,
					RecipientID:   st.RecipientID,
					Status:        st.Status,
					Timestamp:     epochMillis(st.Timestamp, receivedAt),
					WaBusinessID:  entry.ID,
					PhoneNumberID: v.Metadata.PhoneNumberID,
				}))
			}
		}
	}

	return Normalized{Events: events}
}

func (n *Normalizer) messageEvent(wabaID string, v changeValue, msg webhookMessage, receivedAt time.Time) event.MessageEvent {
	ev := event.MessageEvent{
		Direction:          event.DirectionInbound,
		Type:               msg.Type,
		ContactWaID:        msg.From,
		ContactName:        contactName(v, msg.From),
		PhoneNumberID:      v.Metadata.PhoneNumberID,
		DisplayPhoneNumber: v.Metadata.DisplayPhoneNumber,
		WaBusinessID:       wabaID,
		Wamid:              msg.ID,
		Timestamp:          epochMillis(msg.Timestamp, receivedAt),
	}
	if msg.Context != nil {
		ev.ReplyTo = msg.Context.ID
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			ev.Body = msg.Text.Body
		}
	case "image", "video", "audio", "document", "sticker":
		media := mediaFor(msg)
		if media == nil {
			ev.Body = receivedBody(msg.Type)
			break
		}
		ev.MediaID = media.ID
		ev.MediaType = msg.Type
		ev.Body = strings.TrimSpace(media.Caption)
		if ev.Body == "" {
			ev.Body = defaultMediaBody(msg.Type, media.Filename)
		}
		ev.MediaPath = media.MimeType
		if msg.Type == "document" && media.Filename != "" {
			ev.MediaPath = media.Filename
		}
	case "interactive":
		ev.Body = interactiveTitle(msg)
	case "button":
		if msg.Button != nil {
			ev.Body = msg.Button.Text
		}
	}

	if ev.Body == "" {
		ev.Body = receivedBody(msg.Type)
	}
	return ev
}

func mediaFor(msg webhookMessage) *mediaObject {
	switch msg.Type {
	case "image":
		return msg.Image
	case "video":
		return msg.Video
	case "audio":
		return msg.Audio
	case "document":
		return msg.Document
	case "sticker":
		return msg.Sticker
	}
	return nil
}

func interactiveTitle(msg webhookMessage) string {
	if msg.Interactive == nil {
		return ""
	}
	switch {
	case msg.Interactive.ButtonReply != nil:
		return msg.Interactive.ButtonReply.Title
	case msg.Interactive.ListReply != nil:
		return msg.Interactive.ListReply.Title
	}
	return ""
}

func defaultMediaBody(mediaType, filename string) string {
	switch mediaType {
	case "document":
		if filename != "" {
			return filename
		}
		return "Document"
	case "image":
		return "Image"
	case "video":
		return "Video"
	case "audio":
		return "Audio"
	case "sticker":
		return "Sticker"
	}
	return receivedBody(mediaType)
}

func receivedBody(msgType string) string {
	if msgType == "" {
		msgType = "message"
	}
	return "received " + msgType
}

// contactName prefers the contact entry matching the sender.
func contactName(v changeValue, from string) string {
	for _, c := range v.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(v.Contacts) == 1 {
		return v.Contacts[0].Profile.Name
	}
	return ""
}

// epochMillis converts the provider's epoch-seconds string; unparsable values
// fall back to the time the webhook was received.
func epochMillis(ts string, receivedAt time.Time) int64 {
	secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil || secs <= 0 {
		return receivedAt.UnixMilli()
	}
	return secs * 1000
}
