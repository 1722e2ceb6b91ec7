package announcer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"radiostream/internal/domain"
)

type fakeOpenAI struct {
	script    string
	scriptErr error
	audio     string
	audioErr  error

	chatCalls   int
	speechCalls int
}

func (f *fakeOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatCalls++
	if f.scriptErr != nil {
		return openai.ChatCompletionResponse{}, f.scriptErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.script}},
		},
	}, nil
}

func (f *fakeOpenAI) CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	f.speechCalls++
	if f.audioErr != nil {
		return openai.RawResponse{}, f.audioErr
	}
	return openai.RawResponse{ReadCloser: io.NopCloser(strings.NewReader(f.audio))}, nil
}

func newTestAnnouncer(t *testing.T, client openAIClient) *Announcer {
	t.Helper()
	return &Announcer{
		client:    client,
		chatModel: "gpt-4o-mini",
		voice:     openai.VoiceNova,
		cacheDir:  t.TempDir(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func dedicatedSong() domain.Song {
	return domain.Song{
		ID:         "song-1",
		Title:      "Test Song",
		Artist:     "Test Artist",
		Dedication: "for my best friend on her birthday",
	}
}

func TestAnnounceWithAudio(t *testing.T) {
	client := &fakeOpenAI{script: "Here comes a special one!", audio: "mp3-bytes"}
	a := newTestAnnouncer(t, client)

	ann, err := a.Announce(context.Background(), dedicatedSong())
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if ann.Text != "Here comes a special one!" {
		t.Errorf("Text = %q", ann.Text)
	}
	if !strings.HasPrefix(ann.AudioURL, "/announcements/") || !strings.HasSuffix(ann.AudioURL, ".mp3") {
		t.Errorf("AudioURL = %q", ann.AudioURL)
	}

	path := filepath.Join(a.cacheDir, filepath.Base(ann.AudioURL))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cached file: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("cached audio = %q", data)
	}
}

func TestAnnounceSynthesisCached(t *testing.T) {
	client := &fakeOpenAI{script: "Same script every time.", audio: "mp3-bytes"}
	a := newTestAnnouncer(t, client)

	ctx := context.Background()
	first, err := a.Announce(ctx, dedicatedSong())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Announce(ctx, dedicatedSong())
	if err != nil {
		t.Fatal(err)
	}
	if first.AudioURL != second.AudioURL {
		t.Errorf("AudioURL changed between calls: %q vs %q", first.AudioURL, second.AudioURL)
	}
	if client.speechCalls != 1 {
		t.Errorf("speech calls = %d, want 1 (second hit served from cache)", client.speechCalls)
	}
}

func TestAnnounceScriptFallsBackToTemplate(t *testing.T) {
	client := &fakeOpenAI{scriptErr: errors.New("rate limited"), audio: "mp3-bytes"}
	a := newTestAnnouncer(t, client)

	ann, err := a.Announce(context.Background(), dedicatedSong())
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if !strings.Contains(ann.Text, "Test Song by Test Artist") {
		t.Errorf("template text missing song: %q", ann.Text)
	}
	if !strings.Contains(ann.Text, "for my best friend on her birthday") {
		t.Errorf("template text missing dedication: %q", ann.Text)
	}
}

func TestAnnounceSynthesisFailureIsTextOnly(t *testing.T) {
	client := &fakeOpenAI{script: "A lovely intro.", audioErr: errors.New("tts down")}
	a := newTestAnnouncer(t, client)

	ann, err := a.Announce(context.Background(), dedicatedSong())
	if err != nil {
		t.Fatalf("Announce must not fail the airing: %v", err)
	}
	if ann.Text != "A lovely intro." {
		t.Errorf("Text = %q", ann.Text)
	}
	if ann.AudioURL != "" {
		t.Errorf("AudioURL = %q, want empty", ann.AudioURL)
	}
}

func TestAnnounceNoClientUsesTemplate(t *testing.T) {
	a := newTestAnnouncer(t, nil)

	ann, err := a.Announce(context.Background(), dedicatedSong())
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if ann.AudioURL != "" {
		t.Errorf("AudioURL = %q, want empty without API key", ann.AudioURL)
	}
	if !strings.Contains(ann.Text, "Up next") {
		t.Errorf("Text = %q, want template", ann.Text)
	}
}

func TestCachedFileRejectsTraversal(t *testing.T) {
	a := newTestAnnouncer(t, nil)

	if _, err := a.CachedFile("../secret.mp3"); err == nil {
		t.Error("expected error for path traversal")
	}
	if _, err := a.CachedFile(".."); err == nil {
		t.Error("expected error for dot-dot")
	}
	path, err := a.CachedFile("abc123.mp3")
	if err != nil {
		t.Fatalf("CachedFile: %v", err)
	}
	if filepath.Dir(path) != a.cacheDir {
		t.Errorf("path %q escapes cache dir", path)
	}
}
