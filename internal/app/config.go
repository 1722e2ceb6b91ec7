package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	YTDLPPath          string
	OpenAIAPIKey       string
	OpenAIChatModel    string
	OpenAITTSVoice     string
	LibraryDir         string
	TTSCacheDir        string
	StreamURLTTLSecs   int64
	Timezone           string
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "radiostream"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		YTDLPPath:          getEnv("YTDLP_PATH", "yt-dlp"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAITTSVoice:     getEnv("OPENAI_TTS_VOICE", "nova"),
		LibraryDir:         getEnv("LIBRARY_DIR", "library"),
		TTSCacheDir:        getEnv("TTS_CACHE_DIR", "cache/announcements"),
		StreamURLTTLSecs:   getEnvInt64("STREAM_URL_TTL_SECONDS", 300),
		Timezone:           getEnv("TIMEZONE", "Local"),
		CORSAllowedOrigins: splitOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func splitOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, strings.TrimSuffix(origin, "/"))
	}
	return origins
}
