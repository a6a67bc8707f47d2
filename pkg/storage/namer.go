package storage

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var assetNamePattern = regexp.MustCompile(`^img_(\d+)\.[A-Za-z0-9]+$`)

// AssetNamer hands out img_<n>.<ext> names. The counter starts one past the
// highest n found in the directory, so it survives restarts without a
// stored counter. Only one process may write into the directory.
type AssetNamer struct {
	ext  string
	next int
}

// NewAssetNamer scans dir. A missing directory counts as empty.
func NewAssetNamer(dir, ext string) (*AssetNamer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	next := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := assetNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}

	return &AssetNamer{ext: strings.TrimPrefix(ext, "."), next: next}, nil
}

// NextName returns the next name with the default extension.
func (n *AssetNamer) NextName() string {
	return n.NextNameFor(n.ext)
}

// NextNameFor returns the next name with ext and advances the counter.
func (n *AssetNamer) NextNameFor(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = n.ext
	}
	name := fmt.Sprintf("img_%d.%s", n.next, ext)
	n.next++
	return name
}
