package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/AzielCF/az-wacloud/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenEncrypter seals access tokens before they reach storage.
type TokenEncrypter interface {
	Encrypt(plainText string) (string, error)
}

// ChannelService manages channels and their WhatsApp configs.
type ChannelService struct {
	store   channelDomain.Store
	secrets TokenEncrypter
	now     func() time.Time
}

func NewChannelService(store channelDomain.Store, secrets TokenEncrypter) *ChannelService {
	return &ChannelService{
		store:   store,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChannelService) CreateChannel(ctx context.Context, req channelDomain.CreateChannelRequest) (channelDomain.Channel, error) {
	req.CrmChannelID = strings.TrimSpace(req.CrmChannelID)
	req.Name = strings.TrimSpace(req.Name)
	if err := validations.ValidateCreateChannel(ctx, req); err != nil {
		return channelDomain.Channel{}, err
	}

	now := s.now()
	ch := channelDomain.Channel{
		ID:           uuid.NewString(),
		CrmChannelID: req.CrmChannelID,
		Name:         req.Name,
		Active:       req.Active == nil || *req.Active,
		WaConfigs:    map[string]channelDomain.WaConfig{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, ch); err != nil {
		return channelDomain.Channel{}, mapChannelErr(err)
	}

	logrus.Infof("[CHANNEL] Created channel %s (%s) for crm channel %s", ch.ID, ch.Name, ch.CrmChannelID)
	return ch, nil
}

func (s *ChannelService) GetChannel(ctx context.Context, id string) (channelDomain.Channel, error) {
	ch, err := s.store.GetByID(ctx, id)
	if err != nil {
		return channelDomain.Channel{}, mapChannelErr(err)
	}
	return ch, nil
}

func (s *ChannelService) ListChannels(ctx context.Context) ([]channelDomain.Channel, error) {
	channels, err := s.store.List(ctx)
	if err != nil {
		return nil, mapChannelErr(err)
	}
	return channels, nil
}

func (s *ChannelService) DeleteChannel(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mapChannelErr(err)
	}
	logrus.Infof("[CHANNEL] Deleted channel %s", id)
	return nil
}

// AddWaConfig registers a WABA under a channel. Registering a WABA the
// channel already holds replaces its settings and token; a WABA owned by
// another channel is a conflict.
func (s *ChannelService) AddWaConfig(ctx context.Context, req channelDomain.AddWaConfigRequest) (channelDomain.WaConfig, error) {
	req.WaBusinessID = strings.TrimSpace(req.WaBusinessID)
	req.PhoneNumberID = strings.TrimSpace(req.PhoneNumberID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if err := validations.ValidateAddWaConfig(ctx, req); err != nil {
		return channelDomain.WaConfig{}, err
	}

	ch, err := s.store.GetByID(ctx, req.ChannelID)
	if err != nil {
		return channelDomain.WaConfig{}, mapChannelErr(err)
	}

	now := s.now()
	cfg := channelDomain.WaConfig{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	existing, err := s.store.FindWaConfigByWaBusinessID(ctx, req.WaBusinessID)
	switch {
	case err == nil && existing.ChannelID != ch.ID:
		return channelDomain.WaConfig{}, pkgError.ConflictError(fmt.Sprintf("wa business id %s belongs to another channel", req.WaBusinessID))
	case err == nil:
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	case !errors.Is(err, channelDomain.ErrWaConfigNotFound):
		return channelDomain.WaConfig{}, mapChannelErr(err)
	}

	token, err := s.secrets.Encrypt(req.AccessToken)
	if err != nil {
		logrus.WithError(err).Error("[CHANNEL] Cannot encrypt access token")
		return channelDomain.WaConfig{}, pkgError.InternalServerError("cannot encrypt access token")
	}

	participants := make([]string, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, strings.TrimSpace(p))
	}

	cfg.ChannelID = ch.ID
	cfg.Active = req.Active == nil || *req.Active
	cfg.Name = strings.TrimSpace(req.Name)
	cfg.WaBusinessID = req.WaBusinessID
	cfg.PhoneNumberID = req.PhoneNumberID
	cfg.DisplayPhoneNumber = strings.TrimSpace(req.DisplayPhoneNumber)
	cfg.EncryptedToken = token
	cfg.Participants = participants
	cfg.UpdatedAt = now

	if err := s.store.SaveWaConfig(ctx, cfg); err != nil {
		return channelDomain.WaConfig{}, mapChannelErr(err)
	}

	logrus.Infof("[CHANNEL] Registered WABA %s (phone number id %s) on channel %s", cfg.WaBusinessID, cfg.PhoneNumberID, ch.ID)
	return cfg, nil
}

func (s *ChannelService) RemoveWaConfig(ctx context.Context, channelID, waBusinessID string) error {
	if err := s.store.DeleteWaConfig(ctx, channelID, waBusinessID); err != nil {
		return mapChannelErr(err)
	}
	logrus.Infof("[CHANNEL] Removed WABA %s from channel %s", waBusinessID, channelID)
	return nil
}

func (s *ChannelService) SetWaConfigActive(ctx context.Context, channelID, waBusinessID string, active bool) (channelDomain.WaConfig, error) {
	ch, err := s.store.GetByID(ctx, channelID)
	if err != nil {
		return channelDomain.WaConfig{}, mapChannelErr(err)
	}
	cfg, ok := ch.WaConfigs[waBusinessID]
	if !ok {
		return channelDomain.WaConfig{}, mapChannelErr(channelDomain.ErrWaConfigNotFound)
	}
	if cfg.Active == active {
		return cfg, nil
	}

	cfg.Active = active
	cfg.UpdatedAt = s.now()
	if err := s.store.SaveWaConfig(ctx, cfg); err != nil {
		return channelDomain.WaConfig{}, mapChannelErr(err)
	}
	return cfg, nil
}

func mapChannelErr(err error) error {
	switch {
	case errors.Is(err, channelDomain.ErrNotFound), errors.Is(err, channelDomain.ErrWaConfigNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, channelDomain.ErrDuplicateChannel), errors.Is(err, channelDomain.ErrDuplicateWaConfig):
		return pkgError.ConflictError(err.Error())
	default:
		return err
	}
}
