package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"

	"radiostream/internal/domain"
)

// wsCommandRouter dispatches the closed set of client commands. Unknown
// types are rejected; admin-intent commands are gated on the arbiter.
type wsCommandRouter struct {
	playback PlaybackController
	arbiter  *arbiter
	logger   *slog.Logger
}

type joinAdminPayload struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Takeover  bool   `json:"takeover"`
}

type stateUpdatePayload struct {
	Stage    string  `json:"stage"`
	Position float64 `json:"position"`
}

func (r *wsCommandRouter) dispatch(ctx context.Context, client *wsClient, msg wsMessage) {
	switch msg.Type {
	case domain.CmdJoinAdminRoom:
		var payload joinAdminPayload
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				r.logger.Debug("join-admin-room parse failed", slog.String("error", err.Error()))
				return
			}
		}
		r.arbiter.handleJoin(client, payload.UserID, payload.SessionID, payload.Takeover)

	case domain.CmdGetCurrentSong:
		client.sendEvent(domain.EventCurrentSong, map[string]any{"song": r.playback.CurrentSong()})

	case domain.CmdSongStarted:
		if !r.arbiter.isActiveAdmin(client) {
			return
		}
		var event domain.PlayEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			r.logger.Debug("song-started parse failed", slog.String("error", err.Error()))
			return
		}
		r.playback.NoteSongStarted(event)

	case domain.CmdSongEndedNotify:
		if !r.arbiter.isActiveAdmin(client) {
			return
		}
		r.playback.OnSongEnded(ctx)

	case domain.CmdPlaybackStopped:
		if !r.arbiter.isActiveAdmin(client) {
			return
		}
		if err := r.playback.Stop(ctx); err != nil {
			r.logger.Warn("stop failed", slog.String("error", err.Error()))
		}

	case domain.CmdGetPlaybackState:
		if !r.arbiter.isActiveAdmin(client) {
			return
		}
		event, ok := r.playback.PlaybackStateForReconnect(ctx)
		if !ok {
			client.sendEvent(domain.EventPlaybackIdle, nil)
			return
		}
		if event.HasAnnouncement() {
			client.sendEvent(domain.EventPlayAnnouncement, event)
		} else {
			client.sendEvent(domain.EventPlaySong, event)
		}

	case domain.CmdPlaybackStateUpdate:
		if !r.arbiter.isActiveAdmin(client) {
			return
		}
		var payload stateUpdatePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			r.logger.Debug("playback-state-update parse failed", slog.String("error", err.Error()))
			return
		}
		r.playback.NotePosition(ctx, payload.Position)

	default:
		r.logger.Debug("unknown ws command rejected", slog.String("type", msg.Type))
	}
}

func (r *wsCommandRouter) onDisconnect(client *wsClient) {
	r.arbiter.handleDisconnect(client)
}
