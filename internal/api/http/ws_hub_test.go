package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"radiostream/internal/domain"
)

// ---- fakes ----

type fakePlayback struct {
	mu           sync.Mutex
	current      *domain.Song
	locked       *domain.PreparedSlot
	replay       *domain.PlayEvent
	started      []domain.PlayEvent
	ended        int
	stopped      int
	cleared      int
	positions    []float64
	playTopCalls int
	playSpecific []domain.SongID
	volume       int
	err          error
}

func (f *fakePlayback) PlayTopNow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playTopCalls++
	return f.err
}

func (f *fakePlayback) PlaySpecific(_ context.Context, id domain.SongID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playSpecific = append(f.playSpecific, id)
	return f.err
}

func (f *fakePlayback) Pause(context.Context) error  { return f.err }
func (f *fakePlayback) Resume(context.Context) error { return f.err }

func (f *fakePlayback) SetVolume(_ context.Context, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.volume = volume
	return nil
}

func (f *fakePlayback) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return f.err
}

func (f *fakePlayback) OnSongEnded(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
}

func (f *fakePlayback) NoteSongStarted(event domain.PlayEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, event)
}

func (f *fakePlayback) NotePosition(_ context.Context, position float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, position)
}

func (f *fakePlayback) CurrentSong() *domain.Song {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakePlayback) LockedSlot() (*domain.PreparedSlot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked, f.locked != nil
}

func (f *fakePlayback) PlaybackStateForReconnect(context.Context) (*domain.PlayEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replay, f.replay != nil
}

func (f *fakePlayback) ClearPresence() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

// ---- helpers ----

func makeWSServer(playback *fakePlayback) *Server {
	s := NewServer()
	s.SetPlayback(playback)
	return s
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

type decodedEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) decodedEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg decodedEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmdType string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": cmdType, "data": data})
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

// ---- wsHub unit tests ----

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newWSHub(slog.Default())

	client := &wsClient{hub: hub, send: make(chan []byte, 256), done: make(chan struct{})}
	hub.register(client)
	if hub.clientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.clientCount())
	}

	hub.unregister(client)
	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}

	// Unregistering twice must be a no-op.
	hub.unregister(client)
	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients after double unregister, got %d", hub.clientCount())
	}
}

func TestWSHubBroadcastPreservesOrder(t *testing.T) {
	hub := newWSHub(slog.Default())

	c1 := &wsClient{hub: hub, send: make(chan []byte, 256), done: make(chan struct{})}
	c2 := &wsClient{hub: hub, send: make(chan []byte, 256), done: make(chan struct{})}
	hub.register(c1)
	hub.register(c2)

	hub.Broadcast(domain.EventQueueUpdated, nil)
	hub.Broadcast(domain.EventPlaySong, map[string]string{"stream_url": "u"})
	hub.Broadcast(domain.EventRecentlyPlayedUpdated, nil)

	want := []string{domain.EventQueueUpdated, domain.EventPlaySong, domain.EventRecentlyPlayedUpdated}
	for i, c := range []*wsClient{c1, c2} {
		for _, expected := range want {
			select {
			case raw := <-c.send:
				var msg decodedEvent
				if err := json.Unmarshal(raw, &msg); err != nil {
					t.Fatalf("client %d: unmarshal: %v", i, err)
				}
				if msg.Type != expected {
					t.Fatalf("client %d: type = %q, want %q", i, msg.Type, expected)
				}
			default:
				t.Fatalf("client %d: missing %q", i, expected)
			}
		}
	}
}

func TestWSHubBroadcastDropsSlowClient(t *testing.T) {
	hub := newWSHub(slog.Default())

	slow := &wsClient{hub: hub, send: make(chan []byte, 1), done: make(chan struct{})}
	hub.register(slow)
	slow.send <- []byte("fill")

	hub.Broadcast(domain.EventQueueUpdated, nil)

	if hub.clientCount() != 0 {
		t.Fatalf("expected slow client to be dropped, got %d clients", hub.clientCount())
	}
}

func TestWSHubBroadcastMarshalFailure(t *testing.T) {
	hub := newWSHub(slog.Default())

	client := &wsClient{hub: hub, send: make(chan []byte, 256), done: make(chan struct{})}
	hub.register(client)

	// channels cannot be marshaled to JSON
	hub.Broadcast("bad", make(chan int))

	select {
	case <-client.send:
		t.Fatal("should not receive message when marshal fails")
	default:
	}
}

func TestWSHubBroadcastNoClients(t *testing.T) {
	hub := newWSHub(slog.Default())
	// Should not panic or block.
	hub.Broadcast(domain.EventQueueUpdated, nil)
}

// ---- WebSocket HTTP handler integration tests ----

func TestHandleWSUpgradeSucceeds(t *testing.T) {
	srv := httptest.NewServer(makeWSServer(&fakePlayback{}))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"noop"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandleWSNonUpgradeRequest(t *testing.T) {
	s := makeWSServer(&fakePlayback{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWSSnapshotOnConnect(t *testing.T) {
	song := &domain.Song{ID: "s1", Title: "Snapshot Song"}
	next := &domain.Song{ID: "s2", Title: "Locked Song"}
	playback := &fakePlayback{
		current: song,
		locked:  &domain.PreparedSlot{Song: next, StreamURL: "https://cdn/audio"},
	}
	srv := httptest.NewServer(makeWSServer(playback))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	first := readEvent(t, conn, 2*time.Second)
	if first.Type != domain.EventCurrentSong {
		t.Fatalf("first snapshot event = %q, want %q", first.Type, domain.EventCurrentSong)
	}
	second := readEvent(t, conn, 2*time.Second)
	if second.Type != domain.EventNextSongLocked {
		t.Fatalf("second snapshot event = %q, want %q", second.Type, domain.EventNextSongLocked)
	}
	var notice domain.LockedNotice
	if err := json.Unmarshal(second.Data, &notice); err != nil {
		t.Fatalf("unmarshal locked notice: %v", err)
	}
	if notice.Song == nil || notice.Song.ID != "s2" {
		t.Fatalf("locked notice song = %+v, want s2", notice.Song)
	}
}

func TestHandleWSNoSnapshotWhenIdle(t *testing.T) {
	s := makeWSServer(&fakePlayback{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected no snapshot message when nothing is playing")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	s := makeWSServer(&fakePlayback{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dialWS(t, srv)
		defer conns[i].Close()
	}
	time.Sleep(50 * time.Millisecond)

	s.Broadcast(domain.EventQueueUpdated, map[string]int{"size": 4})

	for i, conn := range conns {
		msg := readEvent(t, conn, 2*time.Second)
		if msg.Type != domain.EventQueueUpdated {
			t.Fatalf("client %d: type = %q, want %q", i, msg.Type, domain.EventQueueUpdated)
		}
	}
}

func TestGetCurrentSongCommand(t *testing.T) {
	playback := &fakePlayback{current: &domain.Song{ID: "s1", Title: "Playing"}}
	srv := httptest.NewServer(makeWSServer(playback))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	// Drain the snapshot.
	_ = readEvent(t, conn, 2*time.Second)

	sendCommand(t, conn, domain.CmdGetCurrentSong, nil)

	msg := readEvent(t, conn, 2*time.Second)
	if msg.Type != domain.EventCurrentSong {
		t.Fatalf("type = %q, want %q", msg.Type, domain.EventCurrentSong)
	}
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	s := makeWSServer(&fakePlayback{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	c1 := dialWS(t, srv)
	c2 := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	s.Close()
	time.Sleep(100 * time.Millisecond)

	for i, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Fatalf("client %d: expected error after server close", i)
		}
		conn.Close()
	}
}

func TestConcurrentBroadcasts(t *testing.T) {
	s := makeWSServer(&fakePlayback{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Broadcast(domain.EventQueueUpdated, nil)
		}()
	}
	wg.Wait()

	received := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		received++
	}
	if received != 10 {
		t.Fatalf("received %d broadcasts, want 10", received)
	}
}
