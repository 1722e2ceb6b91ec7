package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"radiostream/internal/domain"
	"radiostream/internal/metrics"
)

const (
	// Stream URL extraction gets a longer budget than metadata: the
	// pre-fetch pipeline plans around both deadlines.
	maxResolveTimeout  = 90 * time.Second
	maxMetadataTimeout = 30 * time.Second
)

// YTDLP resolves external video URLs into direct audio stream URLs by
// shelling out to yt-dlp.
type YTDLP struct {
	binary string
}

func New(binary string) *YTDLP {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YTDLP{binary: bin}
}

// ResolveStreamURL returns a direct audio-only stream URL for the given
// external URL. The returned URL expires on the provider's side, so callers
// cache it only briefly.
func (y *YTDLP) ResolveStreamURL(ctx context.Context, externalURL string) (string, error) {
	target := CanonicalURL(externalURL)
	if target == "" {
		return "", errors.New("external URL is required")
	}

	started := time.Now()
	out, err := y.run(ctx, maxResolveTimeout,
		"-g",
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-warnings",
		target,
	)
	metrics.ExtractorDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return "", err
	}

	// yt-dlp prints one URL per requested format; bestaudio yields one line.
	streamURL := firstLine(out)
	if streamURL == "" {
		return "", errors.New("yt-dlp returned no stream URL")
	}
	return streamURL, nil
}

// trackInfo is the subset of yt-dlp --dump-json output the server uses to
// enrich a queued song.
type trackInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// Metadata fetches track metadata without downloading any media.
func (y *YTDLP) Metadata(ctx context.Context, externalURL string) (domain.TrackMetadata, error) {
	target := CanonicalURL(externalURL)
	if target == "" {
		return domain.TrackMetadata{}, errors.New("external URL is required")
	}

	out, err := y.run(ctx, maxMetadataTimeout,
		"--dump-json",
		"--no-playlist",
		"--skip-download",
		"--no-warnings",
		target,
	)
	if err != nil {
		return domain.TrackMetadata{}, err
	}
	info, err := parseTrackInfo(out)
	if err != nil {
		return domain.TrackMetadata{}, err
	}
	return domain.TrackMetadata{
		VideoID:    info.ID,
		Title:      info.Title,
		Artist:     info.Artist,
		Duration:   info.Duration,
		Thumbnail:  info.Thumbnail,
		WebpageURL: info.WebpageURL,
	}, nil
}

func (y *YTDLP) run(ctx context.Context, maxTimeout time.Duration, args ...string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, y.binary, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("yt-dlp failed: %w", err)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

func parseTrackInfo(data []byte) (trackInfo, error) {
	var info trackInfo
	if err := json.Unmarshal(bytes.TrimSpace(data), &info); err != nil {
		return trackInfo{}, fmt.Errorf("yt-dlp output parse failed: %w", err)
	}
	if info.Artist == "" {
		info.Artist = info.Uploader
	}
	return info, nil
}

func firstLine(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// CanonicalURL normalizes a user-submitted video URL so that playlist and
// tracking parameters do not defeat caching or pull in a whole playlist.
// youtu.be short links become full watch URLs. Non-YouTube URLs pass
// through with whitespace trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	switch host {
	case "youtu.be":
		id := strings.Trim(parsed.Path, "/")
		if id == "" {
			return raw
		}
		return "https://www.youtube.com/watch?v=" + id
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		id := parsed.Query().Get("v")
		if id == "" {
			return raw
		}
		return "https://www.youtube.com/watch?v=" + id
	default:
		return raw
	}
}
