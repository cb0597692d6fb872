package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr            string
	RequestTimeout      time.Duration
	LogLevel            string
	LogFormat           string
	UserAgent           string
	OpenLibraryEndpoint string
	LOCEndpoint         string
	AniListEndpoint     string
	JikanEndpoint       string
	KitsuEndpoint       string
	OpenLibraryEnabled  bool
	LOCEnabled          bool
	AniListEnabled      bool
	JikanEnabled        bool
	KitsuEnabled        bool
	RedisURL            string
	CacheTTL            time.Duration
	CacheDisabled       bool
	DBPath              string
	CoversDir           string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8091"),
		RequestTimeout:      time.Duration(getEnvInt("METADATA_TIMEOUT_SECONDS", 0)) * time.Second,
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:           getEnv("METADATA_USER_AGENT", "Readito/1.0"),
		OpenLibraryEndpoint: getEnv("METADATA_PROVIDER_OPENLIBRARY_ENDPOINT", "https://openlibrary.org/search.json"),
		LOCEndpoint:         getEnv("METADATA_PROVIDER_LOC_ENDPOINT", "https://www.loc.gov/books/"),
		AniListEndpoint:     getEnv("METADATA_PROVIDER_ANILIST_ENDPOINT", "https://graphql.anilist.co"),
		JikanEndpoint:       getEnv("METADATA_PROVIDER_JIKAN_ENDPOINT", "https://api.jikan.moe/v4/manga"),
		KitsuEndpoint:       getEnv("METADATA_PROVIDER_KITSU_ENDPOINT", "https://kitsu.io/api/edge/anime"),
		OpenLibraryEnabled:  getEnvBool("METADATA_PROVIDER_OPENLIBRARY_ENABLED", true),
		LOCEnabled:          getEnvBool("METADATA_PROVIDER_LOC_ENABLED", true),
		AniListEnabled:      getEnvBool("METADATA_PROVIDER_ANILIST_ENABLED", true),
		JikanEnabled:        getEnvBool("METADATA_PROVIDER_JIKAN_ENABLED", true),
		KitsuEnabled:        getEnvBool("METADATA_PROVIDER_KITSU_ENABLED", true),
		RedisURL:            getEnv("REDIS_URL", ""),
		CacheTTL:            time.Duration(getEnvInt("METADATA_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
		CacheDisabled:       getEnvBool("METADATA_CACHE_DISABLED", false),
		DBPath:              getEnv("METADATA_DB_PATH", "data/metadata.db"),
		CoversDir:           getEnv("METADATA_COVERS_DIR", "data/covers"),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
