package validations

import (
	"context"

	"github.com/AzielCF/az-wacloud/inbox/domain/channel"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateChannel(ctx context.Context, request channel.CreateChannelRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.CrmChannelID, validation.Required),
		validation.Field(&request.Name, validation.Required, validation.Length(1, 120)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAddWaConfig(ctx context.Context, request channel.AddWaConfigRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ChannelID, validation.Required),
		validation.Field(&request.WaBusinessID, validation.Required, validation.Length(1, 64)),
		validation.Field(&request.PhoneNumberID, validation.Required, validation.Length(1, 64)),
		validation.Field(&request.AccessToken, validation.Required),
		validation.Field(&request.Participants, validation.Each(validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
