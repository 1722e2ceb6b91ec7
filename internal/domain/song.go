package domain

import "time"

type SongID string

// Song is a queue entry owned by the external song store. The core only
// reads the top-voted unplayed song and flips the played flag when a song
// is reserved or aired.
type Song struct {
	ID         SongID     `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	URL        string     `json:"url"`
	VideoID    string     `json:"videoId"`
	Duration   int        `json:"duration"`
	Thumbnail  string     `json:"thumbnail"`
	Dedication string     `json:"dedication,omitempty"`
	Starred    bool       `json:"starred"`
	Votes      int        `json:"votes"`
	AddedAt    time.Time  `json:"addedAt"`
	Played     bool       `json:"played"`
	PlayedAt   *time.Time `json:"playedAt,omitempty"`
}

// HasDedication reports whether the song carries a non-empty dedication
// that warrants a spoken announcement.
func (s Song) HasDedication() bool {
	return len(s.Dedication) > 0
}

// TrackMetadata is a live probe of a song's external source, used to check
// a queue entry against the provider without downloading media.
type TrackMetadata struct {
	VideoID    string  `json:"videoId"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpageUrl"`
}
