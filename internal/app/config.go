package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const bytesPerGB = 1 << 30

// DefaultTrackers is announced to for every admitted torrent, in addition to
// whatever trackers the source itself lists.
var DefaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.demonoid.ch:6969/announce",
	"udp://open.demonii.com:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://explodie.org:6969/announce",
	"udp://tracker2.dler.org:80/announce",
	"udp://tracker.tryhackx.org:6969/announce",
	"udp://tracker.torrust-demo.com:6969/announce",
	"udp://tracker.therarbg.to:6969/announce",
	"udp://tracker.skynetcloud.site:6969/announce",
	"udp://tracker.qu.ax:6969/announce",
	"udp://tracker.hifimarket.in:2710/announce",
	"udp://tracker.gmi.gd:6969/announce",
	"udp://tracker.dler.org:6969/announce",
	"udp://tracker.bittor.pw:1337/announce",
	"udp://tracker.0x7c0.com:6969/announce",
	"udp://tracker-udp.gbitt.info:80/announce",
	"udp://tr4ck3r.duckdns.org:6969/announce",
	"udp://t.overflow.biz:6969/announce",
}

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	TorrentDataDir     string
	TorrentListenPort  int
	StorageLimitBytes  int64 // 0 = unlimited
	AdmissionTimeout   time.Duration
	IdleThreshold      time.Duration
	MinRatio           float64
	SweepInterval      time.Duration
	Trackers           []string
	WipeDataDirOnStart bool

	ProwlarrBaseURL string
	ProwlarrAPIKey  string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	OTLPEndpoint    string
	TraceSampleRate float64
}

// LoadDotEnv merges a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		TorrentDataDir:     getEnv("TORRENT_DATA_DIR", "downloads"),
		TorrentListenPort:  int(getEnvInt64("TORRENT_PORT", 42069)),
		StorageLimitBytes:  int64(getEnvFloat("TORRENT_STORAGE_LIMIT_GB", 50) * bytesPerGB),
		AdmissionTimeout:   getEnvDuration("TORRENT_ADMISSION_TIMEOUT", 60*time.Second),
		IdleThreshold:      getEnvDuration("TORRENT_IDLE_THRESHOLD", 5*time.Minute),
		MinRatio:           getEnvFloat("TORRENT_MIN_RATIO", 1.0),
		SweepInterval:      getEnvDuration("TORRENT_SWEEP_INTERVAL", 5*time.Minute),
		Trackers:           getEnvList("TORRENT_ANNOUNCE_LIST", DefaultTrackers),
		WipeDataDirOnStart: getEnvBool("TORRENT_WIPE_ON_START", true),

		ProwlarrBaseURL: strings.TrimRight(getEnv("PROWLARR_BASE_URL", ""), "/"),
		ProwlarrAPIKey:  getEnv("PROWLARR_API_KEY", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:       getEnvFloat("HTTP_RATE_LIMIT_RPS", 100),
		RateLimitBurst:     int(getEnvInt64("HTTP_RATE_LIMIT_BURST", 200)),

		OTLPEndpoint:    strings.TrimSpace(getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		TraceSampleRate: getEnvRatio("OTEL_TRACES_SAMPLER_ARG", 0.1),
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

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvRatio is getEnvFloat restricted to [0,1].
func getEnvRatio(key string, fallback float64) float64 {
	value := getEnvFloat(key, fallback)
	if value > 1 {
		return fallback
	}
	return value
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
