package event

type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Provider status values. Only StatusRead changes state.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// MessageEvent is a message in canonical form, inbound from the webhook or
// outbound from an agent send. Timestamp is epoch milliseconds.
type MessageEvent struct {
	Direction          Direction `json:"direction"`
	Type               string    `json:"type"`
	Body               string    `json:"body"`
	MediaID            string    `json:"media_id,omitempty"`
	MediaType          string    `json:"media_type,omitempty"`
	MediaPath          string    `json:"media_path,omitempty"`
	ContactWaID        string    `json:"contact_wa_id"`
	ContactName        string    `json:"contact_name,omitempty"`
	PhoneNumberID      string    `json:"phone_number_id"`
	DisplayPhoneNumber string    `json:"display_phone_number,omitempty"`
	WaBusinessID       string    `json:"wa_business_id"`
	Wamid              string    `json:"wamid,omitempty"`
	Timestamp          int64     `json:"timestamp"`
	ReplyTo            string    `json:"reply_to,omitempty"`

	// set on outbound appends only
	AgentID     string `json:"agent_id,omitempty"`
	AgentName   string `json:"agent_name,omitempty"`
	AgentAvatar string `json:"agent_avatar,omitempty"`
}

func (m MessageEvent) IsInbound() bool {
	return m.Direction == DirectionInbound
}

type StatusEvent struct {
	Wamid         string `json:"wamid"`
	RecipientID   string `json:"recipient_id"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
	WaBusinessID  string `json:"wa_business_id"`
	PhoneNumberID string `json:"phone_number_id"`
}

// Event is a tagged union; exactly one of Message or Status is set, matching Kind.
type Event struct {
	Kind    Kind          `json:"kind"`
	Message *MessageEvent `json:"message,omitempty"`
	Status  *StatusEvent  `json:"status,omitempty"`
}

func NewMessage(m MessageEvent) Event {
	return Event{Kind: KindMessage, Message: &m}
}

func NewStatus(s StatusEvent) Event {
	return Event{Kind: KindStatus, Status: &s}
}
