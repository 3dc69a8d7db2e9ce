package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local and .env from the project root. Variables
// already set in the environment win, and .env.local wins over .env.
func LoadEnvFiles(projectRoot string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(projectRoot, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}
