package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env-like files. Missing files
// are skipped and existing process variables keep precedence.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if err := godotenv.Load(trimmed); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
