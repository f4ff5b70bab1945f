package validations

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-wacloud/inbox/domain/outbound"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// WhatsApp rejects text bodies above this length.
const maxTextLength = 4096

func ValidateSendText(ctx context.Context, request outbound.SendTextRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WaBusinessID, validation.Required),
		validation.Field(&request.To, validation.Required),
		validation.Field(&request.Text, validation.Required, validation.RuneLength(1, maxTextLength)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMedia(ctx context.Context, request outbound.SendMediaRequest, maxUploadSize int64) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WaBusinessID, validation.Required),
		validation.Field(&request.To, validation.Required),
		validation.Field(&request.MediaType, validation.Required, validation.In(outbound.MediaTypes...)),
		validation.Field(&request.MimeType, validation.Required),
		validation.Field(&request.Filename, validation.Required),
		validation.Field(&request.Data, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if maxUploadSize > 0 && int64(len(request.Data)) > maxUploadSize {
		return pkgError.ValidationError(fmt.Sprintf("media is %s, the limit is %s",
			humanize.Bytes(uint64(len(request.Data))), humanize.Bytes(uint64(maxUploadSize))))
	}

	return nil
}

func ValidateReadReceipt(ctx context.Context, request outbound.ReadReceiptRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WaBusinessID, validation.Required),
		validation.Field(&request.Wamid, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
