package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultSnapshotBaseURL = "https://websseu.github.io/pythonMusic"

type ConfigStruct struct {
	Snapshot SnapshotConfig
	Options  Options
	Database DatabaseConfig
	Sentry   SentryConfig
}

type SnapshotConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond int
}

type DatabaseConfig struct {
	Path string
}

type SentryConfig struct {
	DSN     string
	Release string
}

type Options struct {
	Port               string
	LogLevel           string
	Timezone           string
	RenderWait         time.Duration
	SessionIdleMinutes int
}

func (s *SentryConfig) IsEnabled() bool {
	return s.DSN != ""
}

// Location resolves the configured time zone used for the "yesterday" default.
// An empty or unknown zone falls back to the process local zone.
func (options *Options) Location() *time.Location {
	if options.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(options.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Snapshot: SnapshotConfig{
			BaseURL:           getSnapshotBaseURL(),
			Timeout:           time.Duration(getSnapshotTimeout()) * time.Second,
			RequestsPerSecond: getRequestsPerSecond(),
		},
		Options: Options{
			Port:               getPort(),
			LogLevel:           os.Getenv("LOG_LEVEL"),
			Timezone:           os.Getenv("TIMEZONE"),
			RenderWait:         time.Duration(getRenderWait()) * time.Millisecond,
			SessionIdleMinutes: getSessionIdle(),
		},
		Database: DatabaseConfig{
			Path: getDatabasePath(),
		},
		Sentry: SentryConfig{
			DSN:     os.Getenv("SENTRY_DSN"),
			Release: os.Getenv("RELEASE"),
		},
	}

	Config = config
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		return "8080"
	}
	return port
}

func getDatabasePath() string {
	path := os.Getenv("DB_PATH")
	if path == "" {
		return "./data/toptracks.db"
	}
	return path
}

func getSnapshotBaseURL() string {
	base := strings.TrimRight(os.Getenv("SNAPSHOT_BASE_URL"), "/")
	if base == "" {
		return defaultSnapshotBaseURL
	}
	return base
}

func getSnapshotTimeout() int {
	timeoutStr := os.Getenv("SNAPSHOT_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		return 10
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		return 10
	}
	if timeout > 60 {
		return 60
	}
	return timeout
}

func getRequestsPerSecond() int {
	rpsStr := os.Getenv("SNAPSHOT_REQUESTS_PER_SECOND")
	if rpsStr == "" {
		return 5
	}
	rps, err := strconv.Atoi(rpsStr)
	if err != nil || rps <= 0 {
		return 5
	}
	if rps > 50 {
		return 50 // static host, be polite
	}
	return rps
}

func getRenderWait() int {
	waitStr := os.Getenv("RENDER_WAIT_MS")
	if waitStr == "" {
		return 2000
	}
	wait, err := strconv.Atoi(waitStr)
	if err != nil || wait < 0 {
		return 2000
	}
	if wait > 10000 {
		return 10000
	}
	return wait
}

func getSessionIdle() int {
	idleStr := os.Getenv("SESSION_IDLE_MINUTES")
	if idleStr == "" {
		return 30
	}
	idle, err := strconv.Atoi(idleStr)
	if err != nil || idle <= 0 {
		return 30
	}
	if idle > 1440 {
		return 1440
	}
	return idle
}
