package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

// Response headers the capture collaborator annotates results with.
const (
	headerImageWidth  = "X-Screenshot-Image-Width"
	headerImageHeight = "X-Screenshot-Image-Height"
	headerPageTitle   = "X-Screenshot-Page-Title"
	headerContentURL  = "X-Screenshot-Content-URL"
)

// Config carries the capture collaborator's connection settings.
type Config struct {
	APIKey string
	Origin string
}

// Service captures snapshots through the external capture API and stores
// the image and cleaned text blobs at scheme-derived paths.
type Service struct {
	cfg    Config
	client *http.Client
	blobs  core.BlobStore
	clock  core.Clock
	logger *zap.Logger
}

// NewService constructs a capture Service.
func NewService(cfg Config, client *http.Client, blobs core.BlobStore, clock core.Clock, logger *zap.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &Service{
		cfg:    cfg,
		client: client,
		blobs:  blobs,
		clock:  clock,
		logger: logger,
	}
}

// Capture invokes the capture collaborator for req.URL, stores the image
// blob, then fetches and stores the cleaned page text. Both blobs land at
// the paths Locate derives for (url, week, run).
func (s *Service) Capture(ctx context.Context, req core.CaptureRequest) (core.CaptureResult, error) {
	ref := Locate(req.URL, req.WeekNumber, req.RunID)

	captureURL := s.buildCaptureURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, captureURL, nil)
	if err != nil {
		return core.CaptureResult{}, fmt.Errorf("build capture request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return core.CaptureResult{}, fmt.Errorf("capture request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return core.CaptureResult{}, fmt.Errorf("capture failed with status %d: %s", resp.StatusCode, body)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.CaptureResult{}, fmt.Errorf("read capture body: %w", err)
	}
	if len(imageData) == 0 {
		return core.CaptureResult{}, fmt.Errorf("capture returned an empty image for %s", req.URL)
	}

	meta := core.SnapshotMeta{
		SourceURL:   req.URL,
		FetchedAt:   s.clock.Now(),
		ImageWidth:  headerInt(resp.Header, headerImageWidth),
		ImageHeight: headerInt(resp.Header, headerImageHeight),
		PageTitle:   decodedHeader(resp.Header, headerPageTitle),
		ContentType: resp.Header.Get("Content-Type"),
	}

	imagePath := ImagePath(ref)
	if _, err := s.blobs.PutObject(ctx, imagePath, meta.ContentType, imageData); err != nil {
		return core.CaptureResult{}, fmt.Errorf("store image blob: %w", err)
	}

	contentPath := ContentPath(ref)
	if contentURL := resp.Header.Get(headerContentURL); contentURL != "" {
		if err := s.storeContent(ctx, contentURL, contentPath); err != nil {
			// Text extraction is best-effort here; a later diff against a
			// missing text blob fails terminally on its own.
			s.logger.Warn("content processing failed",
				zap.String("url", req.URL),
				zap.String("content_path", contentPath),
				zap.Error(err),
			)
		}
	}

	return core.CaptureResult{
		Paths: core.SnapshotPaths{
			Image:   imagePath,
			Content: contentPath,
		},
		Metadata: meta,
	}, nil
}

func (s *Service) storeContent(ctx context.Context, contentURL, contentPath string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return fmt.Errorf("build content request: %w", err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("content fetch failed with status %d", resp.StatusCode)
	}
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read content body: %w", err)
	}
	text, err := CleanHTML(string(html))
	if err != nil {
		return fmt.Errorf("clean content: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, contentPath, "text/plain; charset=utf-8", []byte(text)); err != nil {
		return fmt.Errorf("store content blob: %w", err)
	}
	return nil
}

// Content fetches the stored text snapshot for a URL at week/run.
func (s *Service) Content(ctx context.Context, pageURL, weekNumber, runID string) ([]byte, error) {
	ref := Locate(pageURL, weekNumber, runID)
	return s.blobs.GetObject(ctx, ContentPath(ref))
}

// ContentByHash fetches a stored text snapshot by its precomputed URL hash.
func (s *Service) ContentByHash(ctx context.Context, urlHash, weekNumber, runID string) ([]byte, error) {
	ref := core.SnapshotRef{URLHash: urlHash, WeekNumber: NormalizeWeek(weekNumber), RunID: runID}
	return s.blobs.GetObject(ctx, ContentPath(ref))
}

// ImageByHash fetches a stored snapshot image by its precomputed URL hash.
func (s *Service) ImageByHash(ctx context.Context, urlHash, weekNumber, runID string) ([]byte, error) {
	ref := core.SnapshotRef{URLHash: urlHash, WeekNumber: NormalizeWeek(weekNumber), RunID: runID}
	return s.blobs.GetObject(ctx, ImagePath(ref))
}

func (s *Service) buildCaptureURL(req core.CaptureRequest) string {
	opts := req.Options
	params := url.Values{}
	params.Set("access_key", s.cfg.APIKey)
	params.Set("url", req.URL)
	params.Set("format", opts.Format)
	params.Set("response_type", "by_format")

	params.Set("full_page", strconv.FormatBool(opts.FullPage))
	if opts.ImageQuality > 0 {
		params.Set("image_quality", strconv.Itoa(opts.ImageQuality))
	}

	params.Set("block_ads", strconv.FormatBool(opts.BlockAds))
	params.Set("block_cookie_banners", strconv.FormatBool(opts.BlockCookieBanner))
	params.Set("block_trackers", strconv.FormatBool(opts.BlockTrackers))
	params.Set("block_chats", strconv.FormatBool(opts.BlockChats))

	params.Set("delay", strconv.Itoa(opts.Delay))
	if opts.Timeout > 0 {
		params.Set("timeout", strconv.Itoa(opts.Timeout))
	}
	if opts.NavigationTimeout > 0 {
		params.Set("navigation_timeout", strconv.Itoa(opts.NavigationTimeout))
	}
	for _, wait := range opts.WaitUntil {
		params.Add("wait_until", wait)
	}

	params.Set("dark_mode", strconv.FormatBool(opts.DarkMode))
	params.Set("reduced_motion", strconv.FormatBool(opts.ReducedMotion))

	params.Set("metadata_image_size", "true")
	params.Set("metadata_page_title", "true")
	params.Set("metadata_content", "true")

	return s.cfg.Origin + "/take?" + params.Encode()
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return 0
	}
	return n
}

func decodedHeader(h http.Header, key string) string {
	raw := h.Get(key)
	if decoded, err := url.QueryUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
