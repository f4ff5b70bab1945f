package validations

import (
	"context"

	"github.com/AzielCF/az-wacloud/inbox/domain/event"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateMessageEvent(ctx context.Context, ev event.MessageEvent) error {
	err := validation.ValidateStructWithContext(ctx, &ev,
		validation.Field(&ev.Direction, validation.Required, validation.In(event.DirectionInbound, event.DirectionOutbound)),
		validation.Field(&ev.WaBusinessID, validation.Required),
		validation.Field(&ev.PhoneNumberID, validation.Required),
		validation.Field(&ev.ContactWaID, validation.Required),
		validation.Field(&ev.Body, validation.Required),
		validation.Field(&ev.Wamid, validation.When(ev.IsInbound(), validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateStatusEvent(ctx context.Context, st event.StatusEvent) error {
	err := validation.ValidateStructWithContext(ctx, &st,
		validation.Field(&st.Wamid, validation.Required),
		validation.Field(&st.Status, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
