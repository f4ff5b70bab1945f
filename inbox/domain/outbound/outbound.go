package outbound

import "github.com/AzielCF/az-wacloud/inbox/domain/chat"

// Agent identifies the CRM user behind an outbound message. All fields optional.
type Agent struct {
	ID     string `json:"agent_id,omitempty" form:"agent_id"`
	Name   string `json:"agent_name,omitempty" form:"agent_name"`
	Avatar string `json:"agent_avatar,omitempty" form:"agent_avatar"`
}

type SendTextRequest struct {
	WaBusinessID string `json:"wa_business_id"`
	To           string `json:"to"`
	Text         string `json:"text"`
	ReplyTo      string `json:"reply_to,omitempty"`
	Agent
}

type SendMediaRequest struct {
	WaBusinessID string `json:"wa_business_id" form:"wa_business_id"`
	To           string `json:"to" form:"to"`
	MediaType    string `json:"media_type" form:"media_type"` // image, video, audio, document, sticker
	Caption      string `json:"caption,omitempty" form:"caption"`
	Filename     string `json:"filename" form:"filename"`
	MimeType     string `json:"mime_type" form:"mime_type"`
	ReplyTo      string `json:"reply_to,omitempty" form:"reply_to"`
	Data         []byte `json:"-" form:"-"`
	Agent
}

type ReadReceiptRequest struct {
	WaBusinessID string `json:"wa_business_id"`
	Wamid        string `json:"wamid"`
}

// SendResult is returned for every accepted send. Chat is nil when the local
// history write failed; the message was still delivered upstream.
type SendResult struct {
	Wamid    string     `json:"wamid"`
	ThreadID string     `json:"thread_id,omitempty"`
	Chat     *chat.Chat `json:"chat,omitempty"`
}

type ReadReceiptResult struct {
	Wamid       string `json:"wamid"`
	MarkedLocal int64  `json:"marked_local"`
}

var MediaTypes = []any{"image", "video", "audio", "document", "sticker"}
