package domain

// Server → client event types. The set is closed; clients ignore types
// they do not know.
const (
	EventPlaySong              = "play-song"
	EventPlayAnnouncement      = "play-announcement"
	EventQueueUpdated          = "queue-updated"
	EventRecentlyPlayedUpdated = "recently-played-updated"
	EventPlaybackPaused        = "playback-paused"
	EventPlaybackResumed       = "playback-resumed"
	EventVolumeChanged         = "volume-changed"
	EventPlaybackStopped       = "playback-stopped"
	EventSongEnded             = "song-ended"
	EventNextSongLocked        = "next-song-locked"
	EventSongPlayingUpdate     = "song-playing-update"
	EventCurrentSong           = "current-song"
	EventAdminActive           = "admin-active"
	EventAdminRejected         = "admin-rejected"
	EventTakeoverWarning       = "takeover-warning"
	EventForceDisconnect       = "force-disconnect"
	EventPlaybackIdle          = "playback-idle"
)

// Client → server command types. Unknown commands are rejected.
const (
	CmdJoinAdminRoom       = "join-admin-room"
	CmdSongStarted         = "song-started"
	CmdSongEndedNotify     = "song-ended-notify"
	CmdPlaybackStopped     = "playback-stopped"
	CmdGetCurrentSong      = "get-current-song"
	CmdGetPlaybackState    = "get-playback-state"
	CmdPlaybackStateUpdate = "playback-state-update"
)
