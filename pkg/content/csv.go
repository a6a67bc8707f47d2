package content

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"igtags/pkg/models"
)

// CSVFileName is the snapshot file written into the output directory.
const CSVFileName = "content.csv"

var csvHeader = []string{
	"post_id",
	"tags",
	"company",
	"image_url",
	"image_file",
	"caption",
	"comments",
	"number_comments",
}

// CSVSnapshot stores the table as content.csv.
type CSVSnapshot struct {
	path string
}

// NewCSVSnapshot returns a snapshot at dir/content.csv.
func NewCSVSnapshot(dir string) *CSVSnapshot {
	return &CSVSnapshot{path: filepath.Join(dir, CSVFileName)}
}

func (c *CSVSnapshot) Name() string { return CSVFileName }

func (c *CSVSnapshot) Close() error { return nil }

// Load reads the snapshot. Columns are matched by header name so files
// with extra or reordered columns still load.
func (c *CSVSnapshot) Load() ([]*models.Post, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["post_id"]; !ok {
		return nil, fmt.Errorf("snapshot %s has no post_id column", c.path)
	}
	cell := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var posts []*models.Post
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot row: %w", err)
		}

		id := cell(rec, "post_id")
		if id == "" {
			continue
		}
		p := models.NewPost(id, cell(rec, "image_url"), cell(rec, "caption"))
		p.Company = cell(rec, "company")
		p.ImageFile = cell(rec, "image_file")
		p.Tags = splitTags(cell(rec, "tags"))
		if p.Comments, err = DecodeComments(cell(rec, "comments")); err != nil {
			return nil, fmt.Errorf("post %s: %w", id, err)
		}
		posts = append(posts, p)
	}

	return posts, nil
}

// Save writes posts to a temp file, syncs it and renames it over the
// previous snapshot.
func (c *CSVSnapshot) Save(posts []*models.Post) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tempPath := c.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}

	if err := writeCSV(file, posts); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tempPath, c.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	return nil
}

func writeCSV(w io.Writer, posts []*models.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for _, p := range posts {
		comments, err := EncodeComments(p.Comments)
		if err != nil {
			return fmt.Errorf("post %s: %w", p.ID, err)
		}
		rec := []string{
			p.ID,
			strings.Join(p.Tags, ","),
			p.Company,
			p.ImageURL,
			p.ImageFile,
			p.Caption,
			comments,
			strconv.Itoa(p.CommentCount()),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write snapshot row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// EncodeComments serializes comments as a JSON array. An empty list is
// stored as an empty cell.
func EncodeComments(comments []string) (string, error) {
	if len(comments) == 0 {
		return "", nil
	}
	b, err := json.Marshal(comments)
	if err != nil {
		return "", fmt.Errorf("failed to encode comments: %w", err)
	}
	return string(b), nil
}

// DecodeComments reverses EncodeComments. Cells that are not a JSON array
// are treated as newline separated comments.
func DecodeComments(cell string) ([]string, error) {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var out []string
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			if out == nil {
				out = []string{}
			}
			return out, nil
		}
	}
	return strings.Split(cell, "\n"), nil
}

func splitTags(cell string) []string {
	tags := []string{}
	for _, t := range strings.Split(cell, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
