package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
)

// Submitter receives every asset written locally, typically a mirror pool.
type Submitter interface {
	Submit(name string, data []byte)
}

// ImageOptions controls how fetched payloads are prepared before writing.
type ImageOptions struct {
	Normalize bool
	MaxWidth  int
	Quality   int
}

// Manager writes image assets into the output directory under names from
// an AssetNamer. Like the namer it assumes a single writer.
type Manager struct {
	outputDir string
	namer     *AssetNamer
	images    ImageOptions
	mirror    Submitter
	logger    logger.Logger
}

// NewManager creates the output directory if needed and scans it for
// existing asset names.
func NewManager(outputDir string, images ImageOptions, mirror Submitter, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	namer, err := NewAssetNamer(outputDir, "jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		namer:     namer,
		images:    images,
		mirror:    mirror,
		logger:    logger.OrGlobal(log).WithField("component", "storage"),
	}, nil
}

// Store prepares data, writes it under the next free name and returns that
// name. A payload that cannot be decoded is reported as a parsing error
// and consumes no name.
func (m *Manager) Store(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errs.New(errs.ErrorTypeParsing, "empty image payload")
	}

	ext := SniffExtension(data)
	if m.images.Normalize {
		normalized, err := NormalizeImage(data, m.images.MaxWidth, m.images.Quality)
		if err != nil {
			return "", errs.New(errs.ErrorTypeParsing, "%v", err)
		}
		data, ext = normalized, "jpg"
	}

	name := m.namer.NextNameFor(ext)
	if err := m.writeFile(name, data); err != nil {
		return "", err
	}

	m.logger.DebugWithFields("Asset written", map[string]interface{}{
		"file":  name,
		"bytes": len(data),
	})

	if m.mirror != nil {
		m.mirror.Submit(name, data)
	}
	return name, nil
}

// writeFile writes through a temporary file and renames it into place.
func (m *Manager) writeFile(name string, data []byte) error {
	filename := filepath.Join(m.outputDir, name)
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("refusing to overwrite existing asset %s", name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = out.Write(data)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save asset data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
