package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/logger"
	"github.com/narrateapp/narrate-server/internal/objstore"
	"github.com/narrateapp/narrate-server/internal/synthesis"
)

// ProvideSynthesizer provides the text-to-speech client.
func ProvideSynthesizer(i do.Injector) (*synthesis.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return synthesis.New(synthesis.Config{
		BaseURL:           cfg.Synthesis.BaseURL,
		APIKey:            cfg.Synthesis.APIKey,
		RequestsPerSecond: cfg.Synthesis.RequestsPerSecond,
	}, log.Logger), nil
}

// ObjectStorageHandle holds the object storage client. Client is nil when no
// storage credentials are configured; generation then refuses to start and
// narration stays inline-only.
type ObjectStorageHandle struct {
	Client objstore.Client
}

// ProvideObjectStorage provides the durable audio storage client when
// credentials are configured.
func ProvideObjectStorage(i do.Injector) (*ObjectStorageHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.StorageConfigured() {
		log.Warn("No object storage credentials - narration generation disabled")
		return &ObjectStorageHandle{Client: nil}, nil
	}

	drive := objstore.New(context.Background(), objstore.Config{
		ClientID:      cfg.Storage.ClientID,
		ClientSecret:  cfg.Storage.ClientSecret,
		RefreshToken:  cfg.Storage.RefreshToken,
		TokenURL:      cfg.Storage.TokenURL,
		APIBaseURL:    cfg.Storage.APIBaseURL,
		UploadURL:     cfg.Storage.UploadURL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, log.Logger)

	log.Info("Object storage client ready", "folder", cfg.Storage.FolderName)

	return &ObjectStorageHandle{Client: drive}, nil
}
