package domain

import "time"

// PlaybackState is the persisted singleton row describing what the
// broadcaster is currently playing.
type PlaybackState struct {
	CurrentSongID SongID  `json:"currentSongId,omitempty"`
	Playing       bool    `json:"playing"`
	Volume        int     `json:"volume"`
	Position      float64 `json:"position"`
}

// Announcement is a spoken DJ introduction for a dedicated song. AudioURL
// is empty when synthesis failed and clients fall back to client-side
// speech from Text.
type Announcement struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// PreparedSlot is an in-memory reservation created by the pre-fetch
// pipeline at T-5m and consumed by the controller at cron time. Offline
// slots carry no song reservation.
type PreparedSlot struct {
	Song           *Song
	StreamURL      string
	Announcement   *Announcement
	Offline        bool
	DownloadFailed bool
	PreparedAt     time.Time
}

// PlayEvent is the payload of a play-song (or play-announcement) event.
// Field names follow the wire protocol.
type PlayEvent struct {
	Song             *Song     `json:"song"`
	StreamURL        string    `json:"stream_url"`
	Volume           int       `json:"volume"`
	AutoNext         bool      `json:"auto_next"`
	Offline          bool      `json:"is_offline,omitempty"`
	IsReconnect      bool      `json:"is_reconnect,omitempty"`
	AnnouncementText string    `json:"announcement_text,omitempty"`
	AnnouncementURL  string    `json:"announcement_url,omitempty"`
	EmittedAt        time.Time `json:"-"`
}

// HasAnnouncement reports whether the event should be emitted as
// play-announcement rather than play-song.
func (e PlayEvent) HasAnnouncement() bool {
	return e.AnnouncementText != ""
}

// LockedNotice is the payload of a next-song-locked event.
type LockedNotice struct {
	Song            *Song  `json:"song,omitempty"`
	ScheduleTime    string `json:"schedule_time,omitempty"`
	HasAnnouncement bool   `json:"has_announcement"`
	Offline         bool   `json:"is_offline"`
	DownloadFailed  bool   `json:"download_failed,omitempty"`
}
