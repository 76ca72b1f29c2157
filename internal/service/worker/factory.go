package worker

import (
	"log/slog"
	"net/http"

	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/jgivc/fetchdl/internal/service/manager"
	"github.com/spf13/afero"
)

// Factory builds transfer workers sharing one filesystem and HTTP client.
// The client carries no timeout: a streaming transfer must not be cut off
// mid-body.
type Factory struct {
	fs        afero.Fs
	client    *http.Client
	chunkSize int
	log       *slog.Logger
}

func NewFactory(fs afero.Fs, client *http.Client, chunkSize int, log *slog.Logger) *Factory {
	if client == nil {
		client = &http.Client{}
	}
	if chunkSize < 1 {
		chunkSize = defaultChunkSize
	}

	return &Factory{
		fs:        fs,
		client:    client,
		chunkSize: chunkSize,
		log:       log.With(slog.String("service", serviceName)),
	}
}

func (f *Factory) New(itemID int64, sourceURL, destPath string, events chan<- entity.Event) manager.Worker {
	return &Worker{
		itemID:    itemID,
		sourceURL: sourceURL,
		destPath:  destPath,
		fs:        f.fs,
		client:    f.client,
		chunkSize: f.chunkSize,
		events:    events,
		log:       f.log,
	}
}
