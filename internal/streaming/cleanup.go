package streaming

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// CleanOrphanedDirs removes leftover session directories under
// configDir/hls. Sessions are memory-only, so anything on disk at startup
// belongs to a previous process and can never be served again.
func CleanOrphanedDirs(configDir string, log zerolog.Logger) error {
	hlsDir := filepath.Join(configDir, "hls")

	entries, err := os.ReadDir(hlsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(hlsDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove orphaned session directory")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Cleaned orphaned session directories")
	}

	return nil
}
