// Package source defines what the ingestion pipeline needs from a social
// platform.
package source

import (
	"context"

	"igtags/pkg/models"
)

// PostSource discovers posts and fetches their assets and comments.
//
// FetchAsset returns (nil, nil) or a *errors.Error when an asset is
// unreachable; the pipeline retries those and skips the post when retries
// run out. Any other error is treated as fatal for the current phase.
type PostSource interface {
	// Discover returns up to limit candidates for tag that pass accept, in
	// the order the platform shows them. Candidates carry ID, ImageURL,
	// Caption and Tags.
	Discover(ctx context.Context, tag string, accept func(*models.Post) bool, limit int) ([]*models.Post, error)

	FetchAsset(ctx context.Context, url string) ([]byte, error)

	// FetchComments returns up to limit comment bodies for postID. The
	// source pages through the comment list itself.
	FetchComments(ctx context.Context, postID string, limit int) ([]string, error)

	// Authenticate must succeed once before FetchComments is called.
	Authenticate(ctx context.Context, login, password string) error
}

// PostPage is what a post's own page shows.
type PostPage struct {
	Caption  string
	Comments []string
}

// PageSource is implemented by sources that read the full caption from the
// post page along with its comments. The comment phase prefers it over
// FetchComments and replaces a stored caption with a non-empty one.
type PageSource interface {
	FetchPostPage(ctx context.Context, postID string, limit int) (PostPage, error)
}
