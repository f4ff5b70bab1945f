package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type channelModel struct {
	ID           string          `gorm:"primaryKey;column:id"`
	CrmChannelID string          `gorm:"column:crm_channel_id;not null;uniqueIndex"`
	Name         string          `gorm:"column:name;not null"`
	Active       bool            `gorm:"column:active;not null"`
	WaConfigs    []waConfigModel `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;not null"`
}

func (channelModel) TableName() string { return "channels" }

type waConfigModel struct {
	ID                 string                      `gorm:"primaryKey;column:id"`
	ChannelID          string                      `gorm:"column:channel_id;not null;index"`
	Active             bool                        `gorm:"column:active;not null"`
	Name               string                      `gorm:"column:name"`
	WaBusinessID       string                      `gorm:"column:wa_business_id;not null;uniqueIndex"`
	PhoneNumberID      string                      `gorm:"column:phone_number_id;not null;index"`
	DisplayPhoneNumber string                      `gorm:"column:display_phone_number"`
	EncryptedToken     string                      `gorm:"column:encrypted_token;type:text"`
	Participants       datatypes.JSONSlice[string] `gorm:"column:participants"`
	CreatedAt          time.Time                   `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;not null"`
}

func (waConfigModel) TableName() string { return "wa_configs" }

// --- Repository Implementation ---

type ChannelGormRepository struct {
	db *gorm.DB
}

func NewChannelGormRepository(db *gorm.DB) *ChannelGormRepository {
	return &ChannelGormRepository{db: db}
}

func (r *ChannelGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&channelModel{}, &waConfigModel{})
}

func (r *ChannelGormRepository) Create(ctx context.Context, ch channel.Channel) error {
	m := toChannelModel(ch)
	err := conn(ctx, r.db).Omit("WaConfigs").Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return channel.ErrDuplicateChannel
	}
	return err
}

func (r *ChannelGormRepository) GetByID(ctx context.Context, id string) (channel.Channel, error) {
	var m channelModel
	if err := conn(ctx, r.db).Preload("WaConfigs").First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return channel.Channel{}, channel.ErrNotFound
		}
		return channel.Channel{}, err
	}
	return fromChannelModel(m), nil
}

func (r *ChannelGormRepository) List(ctx context.Context) ([]channel.Channel, error) {
	var models []channelModel
	if err := conn(ctx, r.db).Preload("WaConfigs").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]channel.Channel, len(models))
	for i, m := range models {
		res[i] = fromChannelModel(m)
	}
	return res, nil
}

func (r *ChannelGormRepository) Delete(ctx context.Context, id string) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", id).Delete(&waConfigModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&channelModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return channel.ErrNotFound
		}
		return nil
	})
}

// SaveWaConfig inserts or fully replaces a config, keyed by its id.
func (r *ChannelGormRepository) SaveWaConfig(ctx context.Context, cfg channel.WaConfig) error {
	m := toWaConfigModel(cfg)
	err := conn(ctx, r.db).Save(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return channel.ErrDuplicateWaConfig
	}
	return err
}

func (r *ChannelGormRepository) DeleteWaConfig(ctx context.Context, channelID, waBusinessID string) error {
	res := conn(ctx, r.db).
		Where("channel_id = ? AND wa_business_id = ?", channelID, waBusinessID).
		Delete(&waConfigModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return channel.ErrWaConfigNotFound
	}
	return nil
}

func (r *ChannelGormRepository) FindWaConfigByPhoneNumberID(ctx context.Context, phoneNumberID string) (channel.WaConfig, error) {
	return r.findWaConfig(ctx, "phone_number_id = ?", phoneNumberID)
}

func (r *ChannelGormRepository) FindWaConfigByWaBusinessID(ctx context.Context, waBusinessID string) (channel.WaConfig, error) {
	return r.findWaConfig(ctx, "wa_business_id = ?", waBusinessID)
}

func (r *ChannelGormRepository) findWaConfig(ctx context.Context, query string, arg string) (channel.WaConfig, error) {
	var m waConfigModel
	// several configs may share a phone number id after a migration; newest wins
	if err := conn(ctx, r.db).Where(query, arg).Order("created_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return channel.WaConfig{}, channel.ErrWaConfigNotFound
		}
		return channel.WaConfig{}, err
	}
	return fromWaConfigModel(m), nil
}

// --- Mappers ---

func toChannelModel(ch channel.Channel) channelModel {
	return channelModel{
		ID:           ch.ID,
		CrmChannelID: ch.CrmChannelID,
		Name:         ch.Name,
		Active:       ch.Active,
		CreatedAt:    ch.CreatedAt,
		UpdatedAt:    ch.UpdatedAt,
	}
}

func fromChannelModel(m channelModel) channel.Channel {
	ch := channel.Channel{
		ID:           m.ID,
		CrmChannelID: m.CrmChannelID,
		Name:         m.Name,
		Active:       m.Active,
		WaConfigs:    make(map[string]channel.WaConfig, len(m.WaConfigs)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, wm := range m.WaConfigs {
		ch.WaConfigs[wm.WaBusinessID] = fromWaConfigModel(wm)
	}
	return ch
}

func toWaConfigModel(cfg channel.WaConfig) waConfigModel {
	participants := cfg.Participants
	if participants == nil {
		participants = []string{}
	}
	return waConfigModel{
		ID:                 cfg.ID,
		ChannelID:          cfg.ChannelID,
		Active:             cfg.Active,
		Name:               cfg.Name,
		WaBusinessID:       cfg.WaBusinessID,
		PhoneNumberID:      cfg.PhoneNumberID,
		DisplayPhoneNumber: cfg.DisplayPhoneNumber,
		EncryptedToken:     cfg.EncryptedToken,
		Participants:       datatypes.NewJSONSlice(participants),
		CreatedAt:          cfg.CreatedAt,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

func fromWaConfigModel(m waConfigModel) channel.WaConfig {
	return channel.WaConfig{
		ID:                 m.ID,
		ChannelID:          m.ChannelID,
		Active:             m.Active,
		Name:               m.Name,
		WaBusinessID:       m.WaBusinessID,
		PhoneNumberID:      m.PhoneNumberID,
		DisplayPhoneNumber: m.DisplayPhoneNumber,
		EncryptedToken:     m.EncryptedToken,
		Participants:       []string(m.Participants),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
