package content

import (
	"fmt"

	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
	"igtags/pkg/metrics"
	"igtags/pkg/models"
)

// Snapshot is the durable form of a Store.
type Snapshot interface {
	// Load returns every stored post in snapshot order. A snapshot that
	// does not exist yet loads as empty.
	Load() ([]*models.Post, error)
	// Save replaces the whole snapshot with posts.
	Save(posts []*models.Post) error
	Close() error
	// Name is the file name of the snapshot inside the output directory.
	Name() string
}

// Store is the in-memory table of posts keyed by ID. It is not safe for
// concurrent use and assumes a single writer for its lifetime.
type Store struct {
	snap    Snapshot
	order   []string
	posts   map[string]*models.Post
	logger  logger.Logger
	metrics *metrics.Metrics
}

// Open loads snap into a new Store.
func Open(snap Snapshot, log logger.Logger, m *metrics.Metrics) (*Store, error) {
	loaded, err := snap.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", snap.Name(), err)
	}

	s := &Store{
		snap:    snap,
		posts:   make(map[string]*models.Post, len(loaded)),
		logger:  logger.OrGlobal(log).WithField("component", "content"),
		metrics: m,
	}
	for _, p := range loaded {
		s.put(p)
	}

	s.logger.InfoWithFields("Content store opened", map[string]interface{}{
		"snapshot": snap.Name(),
		"posts":    len(s.order),
	})
	return s, nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(id string) bool {
	_, ok := s.posts[id]
	return ok
}

// Get returns a copy of the stored post.
func (s *Store) Get(id string) (*models.Post, bool) {
	p, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Upsert replaces the whole record for p.ID, inserting it when absent.
// Fields are not merged.
func (s *Store) Upsert(p *models.Post) {
	s.put(p.Clone())
}

func (s *Store) put(p *models.Post) {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Comments == nil {
		p.Comments = []string{}
	}
	if _, ok := s.posts[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.posts[p.ID] = p
}

// QueryMissing returns copies of every post whose field is unset, in store
// order.
func (s *Store) QueryMissing(f models.Field) []*models.Post {
	var out []*models.Post
	for _, id := range s.order {
		p := s.posts[id]
		if p.Missing(f) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// AttachImage sets the image file of an existing post. An unknown id is
// an error and leaves the store untouched. A post that already has an
// image keeps it.
func (s *Store) AttachImage(id, filename string) error {
	p, ok := s.posts[id]
	if !ok {
		return errs.NotFound("post %s is not in the content store", id)
	}

	if p.ImageFile != "" && p.ImageFile != filename {
		s.logger.WarnWithFields("Post already has an image file, keeping it", map[string]interface{}{
			"post_id":  id,
			"existing": p.ImageFile,
			"rejected": filename,
		})
		return nil
	}

	p.ImageFile = filename
	return nil
}

// Flush writes the full table to the snapshot.
func (s *Store) Flush() error {
	if err := s.snap.Save(s.All()); err != nil {
		s.metrics.StoreFlush(false)
		return fmt.Errorf("failed to flush %s: %w", s.snap.Name(), err)
	}
	s.metrics.StoreFlush(true)
	s.logger.DebugWithFields("Content store flushed", map[string]interface{}{
		"posts": len(s.order),
	})
	return nil
}

// Len returns the number of stored posts.
func (s *Store) Len() int {
	return len(s.order)
}

// All returns copies of every post in store order.
func (s *Store) All() []*models.Post {
	out := make([]*models.Post, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.posts[id].Clone())
	}
	return out
}

// SnapshotName is the file name of the backing snapshot.
func (s *Store) SnapshotName() string {
	return s.snap.Name()
}

// Close releases the snapshot. It does not flush.
func (s *Store) Close() error {
	return s.snap.Close()
}

// OpenSnapshot returns the snapshot backend for format ("csv" or "sqlite")
// rooted at dir.
func OpenSnapshot(format, dir string) (Snapshot, error) {
	switch format {
	case "", "csv":
		return NewCSVSnapshot(dir), nil
	case "sqlite":
		return OpenSQLiteSnapshot(dir)
	default:
		return nil, errs.New(errs.ErrorTypeConfig, "unknown store format %q", format)
	}
}
