package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	MongoCollection    string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	// TorrentDataDir holds one save directory per torrent plus uploaded
	// .torrent files.
	TorrentDataDir    string
	ListenPort        int
	MetadataTimeout   time.Duration
	StartTimeout      time.Duration
	WindowPieces      int
	StatsStaleAfter   time.Duration
	ResumeInterval    time.Duration
	SlowTaskThreshold time.Duration

	StreamIdleTimeout  time.Duration
	SyncInterval       time.Duration
	BroadcastInterval  time.Duration
	RestoreConcurrency int64

	MinDiskSpaceBytes    int64 // 0 = disabled
	DiskResumeSpaceBytes int64 // 0 = 2x MinDiskSpaceBytes
	DiskCheckInterval    time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "piecestream"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "torrents"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSAllowedOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		TorrentDataDir:    getEnv("TORRENT_DATA_DIR", "data"),
		ListenPort:        int(getEnvInt64("TORRENT_LISTEN_PORT", 42069)),
		MetadataTimeout:   getEnvDuration("TORRENT_METADATA_TIMEOUT", 3*time.Minute),
		StartTimeout:      getEnvDuration("TORRENT_START_TIMEOUT", 4*time.Minute),
		WindowPieces:      int(getEnvInt64("TORRENT_WINDOW_PIECES", 32)),
		StatsStaleAfter:   getEnvDuration("TORRENT_STATS_STALE_AFTER", 5*time.Second),
		ResumeInterval:    getEnvDuration("TORRENT_RESUME_INTERVAL", time.Minute),
		SlowTaskThreshold: getEnvDuration("TORRENT_SLOW_TASK_THRESHOLD", 50*time.Millisecond),

		StreamIdleTimeout:  getEnvDuration("STREAM_IDLE_TIMEOUT", 30*time.Second),
		SyncInterval:       getEnvDuration("TORRENT_SYNC_INTERVAL", 5*time.Second),
		BroadcastInterval:  getEnvDuration("WS_BROADCAST_INTERVAL", time.Second),
		RestoreConcurrency: getEnvInt64("TORRENT_RESTORE_CONCURRENCY", 4),

		MinDiskSpaceBytes:    getEnvInt64("TORRENT_MIN_DISK_SPACE_BYTES", 0),
		DiskResumeSpaceBytes: getEnvInt64("TORRENT_DISK_RESUME_SPACE_BYTES", 0),
		DiskCheckInterval:    getEnvDuration("TORRENT_DISK_CHECK_INTERVAL", 30*time.Second),
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

// getEnvDuration accepts Go duration strings ("90s", "3m") or a bare number
// of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
