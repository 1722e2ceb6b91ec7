package ports

import (
	"context"

	"radiostream/internal/domain"
)

// StreamResolver turns a canonical external video URL into a direct
// audio-only stream URL. Implementations are expected to consult a TTL
// cache and to bound the extraction with a hard deadline.
type StreamResolver interface {
	ResolveStreamURL(ctx context.Context, externalURL string) (string, error)
}

// MetadataProber fetches track details for an external URL without
// downloading any media.
type MetadataProber interface {
	Metadata(ctx context.Context, externalURL string) (domain.TrackMetadata, error)
}

// Announcer produces a spoken DJ introduction for a dedicated song.
// A non-nil announcement with an empty AudioURL means synthesis failed
// and clients fall back to client-side speech.
type Announcer interface {
	Announce(ctx context.Context, song domain.Song) (domain.Announcement, error)
}

// Library is the local fallback music collection used when external
// extraction is unavailable.
type Library interface {
	// RandomTrack returns the filename of a random playable track,
	// relative to the library root.
	RandomTrack() (string, error)
}

// Broadcaster fans an event out to every connected listener.
type Broadcaster interface {
	Broadcast(event string, data any)
}
