package application

import (
	"context"
	"fmt"
	"sort"

	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
)

// Resolution is a matched WhatsApp config together with its owning channel.
type Resolution struct {
	Channel  channelDomain.Channel
	WaConfig channelDomain.WaConfig
}

// Directory maps inbound identifiers to tenant configuration.
// Lookups that match nothing return channel.ErrWaConfigNotFound or
// channel.ErrNotFound; a match on a disabled config or channel returns the
// resolution together with channel.ErrInactive.
type Directory struct {
	store channelDomain.Store
}

func NewDirectory(store channelDomain.Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) ResolveByPhoneNumberID(ctx context.Context, phoneNumberID string) (Resolution, error) {
	cfg, err := d.store.FindWaConfigByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return Resolution{}, err
	}
	ch, err := d.store.GetByID(ctx, cfg.ChannelID)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Channel: ch, WaConfig: cfg}
	if !cfg.Active || !ch.Active {
		return res, fmt.Errorf("phone number id %s: %w", phoneNumberID, channelDomain.ErrInactive)
	}
	return res, nil
}

func (d *Directory) ResolveByWaBusinessID(ctx context.Context, waBusinessID string) (channelDomain.WaConfig, error) {
	cfg, err := d.store.FindWaConfigByWaBusinessID(ctx, waBusinessID)
	if err != nil {
		return channelDomain.WaConfig{}, err
	}
	if !cfg.Active {
		return cfg, fmt.Errorf("wa business id %s: %w", waBusinessID, channelDomain.ErrInactive)
	}
	return cfg, nil
}

// ResolveByParticipant lists the configs of a channel that grant access to participantID.
func (d *Directory) ResolveByParticipant(ctx context.Context, channelID, participantID string) ([]channelDomain.WaConfig, error) {
	ch, err := d.store.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	res := make([]channelDomain.WaConfig, 0, len(ch.WaConfigs))
	for _, cfg := range ch.WaConfigs {
		if cfg.HasParticipant(participantID) {
			res = append(res, cfg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WaBusinessID < res[j].WaBusinessID })
	return res, nil
}
