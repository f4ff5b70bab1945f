package application

import (
	"context"

	"github.com/AzielCF/az-wacloud/integrations/cloudapi"
	pkgError "github.com/AzielCF/az-wacloud/pkg/error"
	"github.com/sirupsen/logrus"
)

// MediaSource resolves and downloads media stored by the Cloud API.
type MediaSource interface {
	GetMediaURL(ctx context.Context, token, phoneNumberID, mediaID string) (cloudapi.MediaInfo, error)
	DownloadMedia(ctx context.Context, token, mediaURL string) ([]byte, error)
}

type Media struct {
	Info cloudapi.MediaInfo
	Data []byte
}

// MediaFetcher downloads inbound media on behalf of agents. Media ids
// are the ones recorded on Chat.MediaID; provider URLs expire within minutes
// so they are resolved on every fetch.
type MediaFetcher struct {
	directory *Directory
	secrets   TokenDecrypter
	source    MediaSource
}

func NewMediaFetcher(directory *Directory, secrets TokenDecrypter, source MediaSource) *MediaFetcher {
	return &MediaFetcher{directory: directory, secrets: secrets, source: source}
}

func (f *MediaFetcher) Fetch(ctx context.Context, waBusinessID, mediaID string) (Media, error) {
	if waBusinessID == "" || mediaID == "" {
		return Media{}, pkgError.ValidationError("wa_business_id and media_id are required")
	}
	cfg, token, err := resolveCredentials(ctx, f.directory, f.secrets, waBusinessID)
	if err != nil {
		return Media{}, err
	}

	info, err := f.source.GetMediaURL(ctx, token, cfg.PhoneNumberID, mediaID)
	if err != nil {
		return Media{}, err
	}
	data, err := f.source.DownloadMedia(ctx, token, info.URL)
	if err != nil {
		return Media{}, err
	}

	logrus.Debugf("[MEDIA] Fetched %s (%s) for %s", mediaID, info.MimeType, waBusinessID)
	return Media{Info: info, Data: data}, nil
}
