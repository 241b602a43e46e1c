// Package config loads the greeter runtime configuration from the
// process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRoleName  = "Newcomer"
	defaultStateFile = "engagement_counts.json"
)

type Config struct {
	// Token is the bot access token, exchanged for a session at login.
	Token string

	// APIBase is the HTTP API root, e.g. http://localhost:3000/api.
	APIBase string

	// WelcomeChannelID is where welcome cards are posted. Empty means
	// join events are observed but no flow starts.
	WelcomeChannelID string

	// OwnerID receives the engagement chart after each finalize.
	OwnerID string

	RoleName       string
	StateFile      string
	BackgroundPath string

	// DigestInterval is the periodic chart digest cadence; zero
	// disables the digest loop.
	DigestInterval time.Duration

	// Proxy configures the outbound HTTP client for chart rendering:
	// "", "off", "env" or a fixed proxy URL.
	Proxy string
}

// Load reads the configuration from the environment. Only the token is
// fatal when missing; everything else degrades or defaults.
func Load() (Config, error) {
	token := strings.TrimSpace(os.Getenv("GREETER_TOKEN"))
	if token == "" {
		return Config{}, fmt.Errorf("GREETER_TOKEN is required")
	}

	apiBase := strings.TrimRight(strings.TrimSpace(os.Getenv("GREETER_API_BASE")), "/")
	if apiBase == "" {
		mewURL := strings.TrimRight(strings.TrimSpace(os.Getenv("MEW_URL")), "/")
		if mewURL == "" {
			mewURL = "http://localhost:3000"
		}
		apiBase = mewURL + "/api"
	}

	roleName := strings.TrimSpace(os.Getenv("GREETER_ROLE_NAME"))
	if roleName == "" {
		roleName = defaultRoleName
	}

	stateFile := strings.TrimSpace(os.Getenv("GREETER_STATE_FILE"))
	if stateFile == "" {
		stateFile = defaultStateFile
	}

	digest := time.Duration(0)
	if v := strings.TrimSpace(os.Getenv("GREETER_DIGEST_INTERVAL")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return Config{}, fmt.Errorf("invalid GREETER_DIGEST_INTERVAL: %q", v)
		}
		digest = time.Duration(secs) * time.Second
	}

	return Config{
		Token:            token,
		APIBase:          apiBase,
		WelcomeChannelID: strings.TrimSpace(os.Getenv("GREETER_WELCOME_CHANNEL")),
		OwnerID:          strings.TrimSpace(os.Getenv("GREETER_OWNER")),
		RoleName:         roleName,
		StateFile:        stateFile,
		BackgroundPath:   strings.TrimSpace(os.Getenv("GREETER_BACKGROUND")),
		DigestInterval:   digest,
		Proxy:            strings.TrimSpace(os.Getenv("GREETER_HTTP_PROXY")),
	}, nil
}
