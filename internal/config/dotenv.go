package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads notifier secrets from .env.local and .env in home and then
// the working directory. Variables already set in the environment win.
// Set SIREN_DOTENV=0 to disable.
func LoadDotEnv(home string) error {
	if IsDotEnvDisabled() {
		return nil
	}

	var paths []string
	if home != "" {
		paths = append(paths, filepath.Join(home, ".env.local"), filepath.Join(home, ".env"))
	}
	paths = append(paths, ".env.local", ".env")

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// IsDotEnvDisabled reports whether SIREN_DOTENV turns .env loading off
func IsDotEnvDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SIREN_DOTENV"))) {
	case "0", "false", "off", "no":
		return true
	}
	return false
}
