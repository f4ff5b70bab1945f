package channel

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound          = errors.New("channel not found")
	ErrWaConfigNotFound  = errors.New("whatsapp config not found")
	ErrInactive          = errors.New("whatsapp config is inactive")
	ErrDuplicateChannel  = errors.New("channel already exists for this crm channel id")
	ErrDuplicateWaConfig = errors.New("whatsapp business account already registered")
)

// Channel groups the WhatsApp Business Accounts of one CRM channel.
type Channel struct {
	ID           string              `json:"id"`
	CrmChannelID string              `json:"crm_channel_id"`
	Name         string              `json:"name"`
	Active       bool                `json:"active"`
	WaConfigs    map[string]WaConfig `json:"wa_configs"` // keyed by WABA id
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// WaConfig holds routing info and the encrypted access token of one WABA.
// The token is never decrypted here; see crypto.Cipher.
type WaConfig struct {
	ID                 string    `json:"id"`
	ChannelID          string    `json:"channel_id"`
	Active             bool      `json:"active"`
	Name               string    `json:"name"`
	WaBusinessID       string    `json:"wa_business_id"`
	PhoneNumberID      string    `json:"phone_number_id"`
	DisplayPhoneNumber string    `json:"display_phone_number"`
	EncryptedToken     string    `json:"-"`
	Participants       []string  `json:"participants"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (w WaConfig) HasParticipant(participantID string) bool {
	return slices.Contains(w.Participants, participantID)
}

// Store is the persistence capability the directory depends on.
type Store interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, ch Channel) error
	GetByID(ctx context.Context, id string) (Channel, error)
	List(ctx context.Context) ([]Channel, error)
	Delete(ctx context.Context, id string) error

	SaveWaConfig(ctx context.Context, cfg WaConfig) error
	DeleteWaConfig(ctx context.Context, channelID, waBusinessID string) error
	FindWaConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (WaConfig, error)
	FindWaConfigByWaBusinessID(ctx context.Context, waBusinessID string) (WaConfig, error)
}
