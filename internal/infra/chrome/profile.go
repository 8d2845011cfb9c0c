package chrome

import (
	"fmt"
	"os"

	"quotepdf/internal/config"
)

// createProfileDir makes a throwaway user data dir under cfg.PDF.UserDataDir,
// or under the system temp dir when that is unset.
func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	} else if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "chromedata-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}
