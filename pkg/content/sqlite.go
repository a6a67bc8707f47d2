package content

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"igtags/pkg/models"
)

// SQLiteFileName is the database written into the output directory.
const SQLiteFileName = "content.db"

// SQLiteSnapshot stores the table in an embedded SQLite database.
type SQLiteSnapshot struct {
	db *sql.DB
}

// OpenSQLiteSnapshot opens (or creates) dir/content.db and ensures the schema.
func OpenSQLiteSnapshot(dir string) (*SQLiteSnapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, SQLiteFileName)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteSnapshot{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSnapshot) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    seq INTEGER NOT NULL,
    post_id TEXT PRIMARY KEY,
    tags TEXT NOT NULL,
    company TEXT NOT NULL,
    image_url TEXT NOT NULL,
    image_file TEXT NOT NULL,
    caption TEXT NOT NULL,
    comments TEXT NOT NULL,
    number_comments INTEGER NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("failed to create posts table: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshot) Name() string { return SQLiteFileName }

func (s *SQLiteSnapshot) Close() error { return s.db.Close() }

// Load returns every row in insertion order.
func (s *SQLiteSnapshot) Load() ([]*models.Post, error) {
	rows, err := s.db.Query(`SELECT post_id, tags, company, image_url, image_file, caption, comments FROM posts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var id, tags, company, imageURL, imageFile, caption, comments string
		if err := rows.Scan(&id, &tags, &company, &imageURL, &imageFile, &caption, &comments); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p := models.NewPost(id, imageURL, caption)
		p.Company = company
		p.ImageFile = imageFile
		p.Tags = splitTags(tags)
		if p.Comments, err = DecodeComments(comments); err != nil {
			return nil, fmt.Errorf("post %s: %w", id, err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Save replaces every row inside one transaction.
func (s *SQLiteSnapshot) Save(posts []*models.Post) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM posts`); err != nil {
		return fmt.Errorf("failed to clear posts: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO posts (seq, post_id, tags, company, image_url, image_file, caption, comments, number_comments) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range posts {
		var comments string
		if comments, err = EncodeComments(p.Comments); err != nil {
			return fmt.Errorf("post %s: %w", p.ID, err)
		}
		if _, err = stmt.Exec(i, p.ID, strings.Join(p.Tags, ","), p.Company, p.ImageURL, p.ImageFile, p.Caption, comments, p.CommentCount()); err != nil {
			return fmt.Errorf("failed to insert post %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit posts: %w", err)
	}
	return nil
}
