package services

import (
	"context"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/metrics"
	"github.com/bobarin/shortform/internal/models"
)

// AssetResolver downloads the stock footage referenced by a request. A failed
// download never fails the request: that position degrades to "no asset".
type AssetResolver struct {
	fetcher     ResourceFetcher
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Metrics
}

func NewAssetResolver(fetcher ResourceFetcher, timeout time.Duration, concurrency int, m *metrics.Metrics) *AssetResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AssetResolver{
		fetcher:     fetcher,
		timeout:     timeout,
		concurrency: concurrency,
		metrics:     m,
	}
}

// Resolve returns one ResolvedAsset per input position, in input order. Downloaded
// files are written into scope and removed when the scope is released.
func (r *AssetResolver) Resolve(ctx context.Context, scope *TempScope, assets []models.AssetRef) []models.ResolvedAsset {
	logger := logging.FromContext(ctx)
	resolved := make([]models.ResolvedAsset, len(assets))

	// Each goroutine writes only its own index and always returns nil, so one
	// failure never cancels its siblings.
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, asset := range assets {
		resolved[i] = models.ResolvedAsset{SearchTerms: asset.SearchTerms}
		if asset.VideoURL == nil || strings.TrimSpace(*asset.VideoURL) == "" {
			continue
		}

		i, asset := i, asset
		url := *asset.VideoURL
		resolved[i].SourceURL = url

		g.Go(func() error {
			data, err := r.fetcher.Fetch(ctx, url, r.timeout)
			if err != nil {
				r.metrics.ObserveDownloadFailure("asset", string(apperr.CauseOf(err)))
				logger.Warn("asset download failed, falling back to no asset",
					"index", i,
					"search_terms", asset.SearchTerms,
					"cause", apperr.CauseOf(err),
					"error", err,
				)
				return nil
			}

			localPath, err := scope.Write("asset", assetExt(url), data)
			if err != nil {
				logger.Warn("failed to persist asset, falling back to no asset",
					"index", i,
					"search_terms", asset.SearchTerms,
					"error", err,
				)
				return nil
			}

			resolved[i].LocalPath = localPath
			return nil
		})
	}
	g.Wait()

	downloaded := 0
	for _, a := range resolved {
		if a.HasAsset() {
			downloaded++
		}
	}
	fallback := len(resolved) - downloaded
	r.metrics.ObserveAssets(downloaded, fallback)

	logger.Info("assets resolved",
		"total", len(resolved),
		"downloaded", downloaded,
		"fallback", fallback,
	)

	return resolved
}

// assetExt keeps a short, known video extension from the URL path so ffmpeg can
// probe the container; anything else becomes .mp4.
func assetExt(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".mp4", ".mov", ".webm", ".mkv", ".m4v":
		return ext
	default:
		return ".mp4"
	}
}
