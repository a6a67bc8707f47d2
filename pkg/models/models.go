package models

import "fmt"

// Field names a post attribute that later phases fill in.
type Field string

const (
	FieldImageFile Field = "image_file"
	FieldComments  Field = "comments"
)

// Post is one discovered item. ID is the platform shortcode and is unique
// within a content store.
type Post struct {
	ID        string
	ImageURL  string
	Caption   string
	Tags      []string
	Comments  []string
	Company   string
	ImageFile string
}

// NewPost returns a post with its own empty tag and comment slices.
func NewPost(id, imageURL, caption string) *Post {
	return &Post{
		ID:       id,
		ImageURL: imageURL,
		Caption:  caption,
		Tags:     []string{},
		Comments: []string{},
	}
}

// CommentCount is always derived from Comments.
func (p *Post) CommentCount() int {
	return len(p.Comments)
}

// Missing reports whether the given field is still unset.
func (p *Post) Missing(f Field) bool {
	switch f {
	case FieldImageFile:
		return p.ImageFile == ""
	case FieldComments:
		return len(p.Comments) == 0
	default:
		return false
	}
}

// Clone returns a deep copy so callers never share slices with the store.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = append(make([]string, 0, len(p.Tags)), p.Tags...)
	c.Comments = append(make([]string, 0, len(p.Comments)), p.Comments...)
	return &c
}

func (p *Post) String() string {
	return fmt.Sprintf("Post(id: %s url: %s)", p.ID, p.ImageURL)
}
