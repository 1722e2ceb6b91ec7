package announcer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"radiostream/internal/domain"
	"radiostream/internal/metrics"
)

const (
	scriptTimeout = 20 * time.Second
	speechTimeout = 30 * time.Second

	systemPrompt = "You are a warm, upbeat radio DJ. Write a short spoken " +
		"introduction (2-3 sentences) for the next song, weaving in the " +
		"listener's dedication naturally. Output only the words to be spoken."
)

// openAIClient is the subset of the OpenAI client the announcer uses.
type openAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Announcer turns a song dedication into a spoken DJ introduction. Script
// writing and speech synthesis both degrade independently: a failed script
// falls back to a plain template, a failed synthesis yields a text-only
// announcement that clients speak locally.
type Announcer struct {
	client    openAIClient
	chatModel string
	voice     openai.SpeechVoice
	cacheDir  string
	logger    *slog.Logger
}

func New(apiKey, chatModel, voice, cacheDir string, logger *slog.Logger) *Announcer {
	var client openAIClient
	if strings.TrimSpace(apiKey) != "" {
		client = openai.NewClient(apiKey)
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	return &Announcer{
		client:    client,
		chatModel: chatModel,
		voice:     openai.SpeechVoice(voice),
		cacheDir:  cacheDir,
		logger:    logger,
	}
}

// Announce produces the announcement for a dedicated song. It never fails
// the airing: the worst case is a template script with no audio.
func (a *Announcer) Announce(ctx context.Context, song domain.Song) (domain.Announcement, error) {
	script := a.writeScript(ctx, song)

	audioURL := ""
	if a.client != nil {
		path, err := a.synthesize(ctx, script, song.ID)
		if err != nil {
			a.logger.Warn("announcement synthesis failed, falling back to text-only",
				slog.String("songId", string(song.ID)),
				slog.String("error", err.Error()))
			metrics.AnnouncementsTotal.WithLabelValues("text_only").Inc()
		} else {
			audioURL = "/announcements/" + filepath.Base(path)
			metrics.AnnouncementsTotal.WithLabelValues("audio").Inc()
		}
	} else {
		metrics.AnnouncementsTotal.WithLabelValues("text_only").Inc()
	}

	return domain.Announcement{Text: script, AudioURL: audioURL}, nil
}

// CachedFile maps an announcement filename back to its path under the
// cache directory, refusing anything that escapes it.
func (a *Announcer) CachedFile(name string) (string, error) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", fmt.Errorf("invalid announcement name %q", name)
	}
	return filepath.Join(a.cacheDir, base), nil
}

func (a *Announcer) writeScript(ctx context.Context, song domain.Song) string {
	if a.client == nil {
		return templateScript(song)
	}

	scriptCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(scriptCtx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: scriptPrompt(song)},
		},
		MaxTokens: 200,
	})
	if err != nil || len(resp.Choices) == 0 {
		if err != nil {
			a.logger.Warn("announcement script generation failed, using template",
				slog.String("songId", string(song.ID)),
				slog.String("error", err.Error()))
		}
		return templateScript(song)
	}

	script := strings.TrimSpace(resp.Choices[0].Message.Content)
	if script == "" {
		return templateScript(song)
	}
	return script
}

func (a *Announcer) synthesize(ctx context.Context, script string, songID domain.SongID) (string, error) {
	path := filepath.Join(a.cacheDir, speechFileName(script, songID))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	speechCtx, cancel := context.WithTimeout(ctx, speechTimeout)
	defer cancel()

	resp, err := a.client.CreateSpeech(speechCtx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Input: script,
		Voice: a.voice,
	})
	if err != nil {
		return "", err
	}
	defer resp.Close()

	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, resp); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func scriptPrompt(song domain.Song) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Song: %s", song.Title)
	if song.Artist != "" {
		fmt.Fprintf(&b, " by %s", song.Artist)
	}
	fmt.Fprintf(&b, "\nDedication: %s", song.Dedication)
	return b.String()
}

func templateScript(song domain.Song) string {
	title := song.Title
	if song.Artist != "" {
		title = fmt.Sprintf("%s by %s", song.Title, song.Artist)
	}
	return fmt.Sprintf("Up next we have %s, with a dedication: %s", title, song.Dedication)
}

// speechFileName keys the cached audio by script and song so a reworded
// script regenerates the file.
func speechFileName(script string, songID domain.SongID) string {
	sum := md5.Sum([]byte(script + "|" + string(songID)))
	return hex.EncodeToString(sum[:]) + ".mp3"
}
