package runtime

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads env vars from .env.local and .env in the working
// directory. It only sets vars that are not already set, matching
// godotenv's behavior. Set GREETER_DOTENV=off to skip entirely.
func LoadDotEnv(logPrefix string) {
	if IsDotEnvDisabled() {
		return
	}

	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Fatalf("%s failed to load %s: %v", logPrefix, p, err)
		}
		log.Printf("%s loaded env from %s", logPrefix, p)
	}
}

func IsDotEnvDisabled() bool {
	v := strings.TrimSpace(os.Getenv("GREETER_DOTENV"))
	if v == "" {
		return false
	}
	switch strings.ToLower(v) {
	case "0", "false", "off", "no":
		return true
	default:
		return false
	}
}
