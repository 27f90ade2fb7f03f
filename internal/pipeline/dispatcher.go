package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/config"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/storage"
)

const videoContentType = "video/mp4"

// Result is a rendered video in the configured response mode: Video is set in
// binary mode, VideoURL in url mode.
type Result struct {
	Mode     config.ResponseMode
	Video    []byte
	VideoURL string
}

// Dispatcher returns rendered bytes as-is or uploads them and returns a URL.
type Dispatcher struct {
	mode     config.ResponseMode
	uploader storage.Uploader
}

func NewDispatcher(mode config.ResponseMode, uploader storage.Uploader) (*Dispatcher, error) {
	if mode == config.ResponseModeURL && uploader == nil {
		return nil, fmt.Errorf("url response mode requires an uploader")
	}
	return &Dispatcher{mode: mode, uploader: uploader}, nil
}

// Dispatch never falls back to binary when an upload fails.
func (d *Dispatcher) Dispatch(ctx context.Context, video []byte) (*Result, error) {
	if d.mode != config.ResponseModeURL {
		return &Result{Mode: config.ResponseModeBinary, Video: video}, nil
	}

	key := objectKey(logging.CorrelationID(ctx))
	url, err := d.uploader.Upload(ctx, key, video, videoContentType)
	if err != nil {
		return nil, apperr.Upload("video upload failed", err)
	}
	if url == "" {
		return nil, apperr.Upload("video upload returned no url", nil)
	}

	logging.FromContext(ctx).Info("video uploaded", "key", key, "bytes", len(video))
	return &Result{Mode: config.ResponseModeURL, VideoURL: url}, nil
}

func objectKey(correlationID string) string {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return "renders/" + correlationID + ".mp4"
}
