package extractor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "watch url with playlist params",
			in:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLx&index=7",
			want: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name: "short link",
			in:   "https://youtu.be/dQw4w9WgXcQ?t=43",
			want: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name: "music subdomain",
			in:   "https://music.youtube.com/watch?v=abc123&si=tracking",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "non-youtube passes through",
			in:   "https://soundcloud.com/artist/track",
			want: "https://soundcloud.com/artist/track",
		},
		{
			name: "whitespace trimmed",
			in:   "  https://www.youtube.com/watch?v=abc123  ",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalURL(tt.in); got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTrackInfo(t *testing.T) {
	raw := []byte(`{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","uploader":"Rick Astley","duration":213.0,"thumbnail":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg","webpage_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)

	info, err := parseTrackInfo(raw)
	if err != nil {
		t.Fatalf("parseTrackInfo: %v", err)
	}
	if info.ID != "dQw4w9WgXcQ" {
		t.Errorf("ID = %q", info.ID)
	}
	if info.Duration != 213 {
		t.Errorf("Duration = %v, want 213", info.Duration)
	}
	if info.Artist != "Rick Astley" {
		t.Errorf("Artist = %q, want uploader fallback", info.Artist)
	}
}

func TestParseTrackInfoInvalid(t *testing.T) {
	if _, err := parseTrackInfo([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFirstLine(t *testing.T) {
	out := []byte("\nhttps://cdn.example.com/audio.m4a\nhttps://cdn.example.com/video.mp4\n")
	if got := firstLine(out); got != "https://cdn.example.com/audio.m4a" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine([]byte("  \n \n")); got != "" {
		t.Errorf("firstLine of blank = %q, want empty", got)
	}
}

type fakeResolver struct {
	calls int
	url   string
	err   error
}

func (f *fakeResolver) ResolveStreamURL(ctx context.Context, externalURL string) (string, error) {
	f.calls++
	return f.url, f.err
}

func TestCacheHitWithinTTL(t *testing.T) {
	resolver := &fakeResolver{url: "https://cdn.example.com/a.m4a"}
	cache := NewCache(resolver, 5*time.Minute)

	now := time.Date(2026, 3, 14, 19, 55, 0, 0, time.UTC)
	cache.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		got, err := cache.ResolveStreamURL(context.Background(), "https://youtu.be/abc")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if got != resolver.url {
			t.Fatalf("resolve %d = %q", i, got)
		}
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestCacheExpires(t *testing.T) {
	resolver := &fakeResolver{url: "https://cdn.example.com/a.m4a"}
	cache := NewCache(resolver, 5*time.Minute)

	now := time.Date(2026, 3, 14, 19, 55, 0, 0, time.UTC)
	cache.Now = func() time.Time { return now }

	if _, err := cache.ResolveStreamURL(context.Background(), "https://youtu.be/abc"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(5*time.Minute + time.Second)
	if _, err := cache.ResolveStreamURL(context.Background(), "https://youtu.be/abc"); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 2 {
		t.Errorf("resolver called %d times, want 2 after expiry", resolver.calls)
	}
}

func TestCacheKeyIsCanonical(t *testing.T) {
	resolver := &fakeResolver{url: "https://cdn.example.com/a.m4a"}
	cache := NewCache(resolver, 5*time.Minute)

	ctx := context.Background()
	if _, err := cache.ResolveStreamURL(ctx, "https://www.youtube.com/watch?v=abc&list=PLx"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.ResolveStreamURL(ctx, "https://youtu.be/abc"); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 for equivalent URLs", resolver.calls)
	}
}

func TestCacheErrorNotCached(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("extraction failed")}
	cache := NewCache(resolver, 5*time.Minute)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := cache.ResolveStreamURL(ctx, "https://youtu.be/abc"); err == nil {
			t.Fatal("expected error")
		}
	}
	if resolver.calls != 2 {
		t.Errorf("resolver called %d times, want 2 (errors not cached)", resolver.calls)
	}
}

func TestCacheInvalidateForcesReextraction(t *testing.T) {
	resolver := &fakeResolver{url: "https://cdn.example.com/a.m4a"}
	cache := NewCache(resolver, 5*time.Minute)

	ctx := context.Background()
	if _, err := cache.ResolveStreamURL(ctx, "https://youtu.be/abc"); err != nil {
		t.Fatal(err)
	}
	// Short-link and watch URL share a cache entry, so either invalidates it.
	cache.Invalidate("https://www.youtube.com/watch?v=abc")
	if _, err := cache.ResolveStreamURL(ctx, "https://youtu.be/abc"); err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 2 {
		t.Errorf("resolver called %d times, want 2 after invalidation", resolver.calls)
	}
}
