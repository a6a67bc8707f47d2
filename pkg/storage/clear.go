package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"igtags/pkg/logger"
)

var outputExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".csv":  true,
	".db":   true,
	".db-wal": true,
	".db-shm": true,
}

// ClearOutput removes previously collected images and snapshots from dir.
// Subdirectories and unrelated files are left alone.
func ClearOutput(dir string, log logger.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !outputExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	logger.OrGlobal(log).InfoWithFields("Output directory cleared", map[string]interface{}{
		"dir":     dir,
		"removed": removed,
	})
	return removed, nil
}
