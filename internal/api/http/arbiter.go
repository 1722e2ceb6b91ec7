package apihttp

import (
	"log/slog"
	"sync"
	"time"

	"radiostream/internal/domain"
	"radiostream/internal/metrics"
)

// adminGraceWindow is how long a disconnected admin's identity is
// remembered so a page refresh reattaches without a takeover.
const adminGraceWindow = 5 * time.Second

// adminPresence is the slice of the playback controller the arbiter needs:
// what is playing (for rejection and takeover warnings) and clearing the
// now-playing memory when the admin truly leaves.
type adminPresence interface {
	CurrentSong() *domain.Song
	ClearPresence()
}

// arbiter enforces the single-broadcaster invariant: at most one admin
// connection is authoritative, with a short grace window across refreshes
// and an explicit takeover protocol.
type arbiter struct {
	mu         sync.Mutex
	active     *wsClient
	userID     string
	sessionID  string
	graceTimer *time.Timer

	presence adminPresence
	logger   *slog.Logger
}

func newArbiter(presence adminPresence, logger *slog.Logger) *arbiter {
	return &arbiter{presence: presence, logger: logger}
}

type adminRejectedPayload struct {
	SongPlaying bool         `json:"song_playing"`
	CurrentSong *domain.Song `json:"current_song,omitempty"`
}

type takeoverWarningPayload struct {
	CurrentSong *domain.Song `json:"current_song,omitempty"`
}

func (a *arbiter) handleJoin(client *wsClient, userID, sessionID string, takeover bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == client {
		client.sendEvent(domain.EventAdminActive, nil)
		return
	}

	if a.active == nil {
		// Inside a grace window the seat is still reserved: the same user
		// reattaches seamlessly, anyone else needs an explicit takeover.
		if a.graceTimer != nil && userID != a.userID && !takeover {
			current := a.presence.CurrentSong()
			client.sendEvent(domain.EventAdminRejected, adminRejectedPayload{
				SongPlaying: current != nil,
				CurrentSong: current,
			})
			a.logger.Info("admin connection rejected, grace window held by another user",
				slog.String("userId", userID),
				slog.String("graceUserId", a.userID))
			return
		}
		a.stopGraceLocked()
		a.installLocked(client, userID, sessionID)
		return
	}

	current := a.presence.CurrentSong()
	if !takeover {
		client.sendEvent(domain.EventAdminRejected, adminRejectedPayload{
			SongPlaying: current != nil,
			CurrentSong: current,
		})
		a.logger.Info("admin connection rejected, broadcaster already active",
			slog.String("userId", userID))
		return
	}

	if current != nil {
		client.sendEvent(domain.EventTakeoverWarning, takeoverWarningPayload{CurrentSong: current})
	}
	incumbent := a.active
	incumbent.sendEvent(domain.EventForceDisconnect, nil)
	go func() {
		// Give the force-disconnect a moment to flush before closing.
		time.Sleep(100 * time.Millisecond)
		incumbent.close()
	}()

	metrics.AdminTakeoversTotal.Inc()
	a.logger.Info("broadcaster takeover",
		slog.String("previousUserId", a.userID),
		slog.String("userId", userID))
	a.installLocked(client, userID, sessionID)
}

func (a *arbiter) handleDisconnect(client *wsClient) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != client {
		return
	}
	a.active = nil
	a.logger.Info("broadcaster disconnected, grace window open",
		slog.String("userId", a.userID))

	a.stopGraceLocked()
	a.graceTimer = time.AfterFunc(adminGraceWindow, a.expireGrace)
}

func (a *arbiter) expireGrace() {
	a.mu.Lock()
	if a.active != nil {
		// Reattached during the window.
		a.mu.Unlock()
		return
	}
	userID := a.userID
	a.userID = ""
	a.sessionID = ""
	a.graceTimer = nil
	a.mu.Unlock()

	a.presence.ClearPresence()
	a.logger.Info("broadcaster grace window expired", slog.String("userId", userID))
}

func (a *arbiter) isActiveAdmin(client *wsClient) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active == client
}

func (a *arbiter) installLocked(client *wsClient, userID, sessionID string) {
	a.active = client
	a.userID = userID
	a.sessionID = sessionID
	client.sendEvent(domain.EventAdminActive, nil)
}

func (a *arbiter) stopGraceLocked() {
	if a.graceTimer != nil {
		a.graceTimer.Stop()
		a.graceTimer = nil
	}
}
