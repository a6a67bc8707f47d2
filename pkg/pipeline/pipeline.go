package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"igtags/pkg/config"
	"igtags/pkg/content"
	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
	"igtags/pkg/metrics"
	"igtags/pkg/models"
	"igtags/pkg/retry"
	"igtags/pkg/source"
)

// Phase names used in metrics, logs and observer events.
const (
	PhaseDiscover = "discover"
	PhaseImages   = "images"
	PhaseComments = "comments"
)

// errEmptyAsset marks a fetch that returned no payload and no error.
var errEmptyAsset = errs.NotFound("source returned no asset")

// ImageSink persists an image payload and returns the file name it was
// written under. *storage.Manager satisfies it.
type ImageSink interface {
	Store(data []byte) (string, error)
}

// Observer receives progress events from a run. Calls are made on the
// goroutine running the pipeline.
type Observer interface {
	PhaseStarted(phase string, total int)
	// ItemFinished reports one post; err is non-nil when it was skipped.
	ItemFinished(phase, postID string, err error)
	PhaseFinished(phase string, err error)
}

type nopObserver struct{}

func (nopObserver) PhaseStarted(string, int)           {}
func (nopObserver) ItemFinished(string, string, error) {}
func (nopObserver) PhaseFinished(string, error)        {}

// Options selects the phases of a run and bounds them.
type Options struct {
	Discover bool
	Images   bool
	Comments bool

	MaxPosts         int
	MaxComments      int
	MinCommentLength int

	ImageAttempts int
	ImageDelay    time.Duration

	Login    string
	Password string
}

// OptionsFromConfig maps the scrape, retry and account settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Discover:         cfg.Scrape.Posts,
		Images:           cfg.Scrape.Images,
		Comments:         cfg.Scrape.Comments,
		MaxPosts:         cfg.Scrape.MaxPosts,
		MaxComments:      cfg.Scrape.MaxComments,
		MinCommentLength: cfg.Scrape.MinCommentLength,
		ImageAttempts:    cfg.Retry.ImageAttempts,
		ImageDelay:       cfg.Retry.ImageDelay,
		Login:            cfg.Instagram.Login,
		Password:         cfg.Instagram.Password,
	}
}

// Result counts what each phase did.
type Result struct {
	Discovered     int
	ImagesSaved    int
	ImagesSkipped  int
	PostsCommented int
	CommentsSaved  int
	TagsSkipped    int
	PostsSkipped   int
}

// Pipeline runs discovery and the two fill phases against one content
// store. It is strictly sequential.
type Pipeline struct {
	store    *content.Store
	source   source.PostSource
	assets   ImageSink
	opts     Options
	logger   logger.Logger
	metrics  *metrics.Metrics
	observer Observer
}

// New creates a pipeline. assets may be nil when the image phase is off.
func New(store *content.Store, src source.PostSource, assets ImageSink, opts Options, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if opts.ImageAttempts < 1 {
		opts.ImageAttempts = 1
	}
	return &Pipeline{
		store:    store,
		source:   src,
		assets:   assets,
		opts:     opts,
		logger:   logger.OrGlobal(log).WithField("component", "pipeline"),
		metrics:  m,
		observer: nopObserver{},
	}
}

// WithObserver routes progress events to o.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	if o == nil {
		o = nopObserver{}
	}
	p.observer = o
	return p
}

// Run executes the enabled phases in order. When discovery runs, the later
// phases work on the posts it accepted; otherwise each phase resumes from
// the posts still missing its field.
func (p *Pipeline) Run(ctx context.Context, groups []config.TagGroup) (Result, error) {
	var res Result

	if p.opts.Images && p.assets == nil {
		return res, errs.New(errs.ErrorTypeConfig, "image phase enabled without an image sink")
	}

	p.logger.InfoWithFields("Starting ingestion run", map[string]interface{}{
		"discover": p.opts.Discover,
		"images":   p.opts.Images,
		"comments": p.opts.Comments,
		"groups":   len(groups),
	})

	if p.opts.Comments {
		if p.opts.Login == "" || p.opts.Password == "" {
			return res, errs.New(errs.ErrorTypeConfig,
				"scraping comments requires authentication, please provide login and password")
		}
		p.logger.Info("Logging in with provided credentials")
		if err := p.source.Authenticate(ctx, p.opts.Login, p.opts.Password); err != nil {
			return res, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	var discovered []*models.Post
	if p.opts.Discover {
		posts, skipped, err := p.Discover(ctx, groups)
		res.Discovered = len(posts)
		res.TagsSkipped = skipped
		if err != nil {
			return res, err
		}
		discovered = posts
	}

	if p.opts.Images {
		targets := discovered
		if !p.opts.Discover {
			targets = p.store.QueryMissing(models.FieldImageFile)
		}
		saved, skipped, err := p.FillImages(ctx, targets)
		res.ImagesSaved, res.ImagesSkipped = saved, skipped
		if err != nil {
			return res, err
		}
	}

	if p.opts.Comments {
		targets := discovered
		if !p.opts.Discover {
			targets = p.store.QueryMissing(models.FieldComments)
		}
		commented, saved, skipped, err := p.FillComments(ctx, targets)
		res.PostsCommented, res.CommentsSaved, res.PostsSkipped = commented, saved, skipped
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// Discover asks the source for new posts tag by tag, stamps each with its
// company and upserts it. The global cap is shared by every group, and the
// store is flushed once when discovery ends, whatever the outcome.
//
// A typed source error skips the tag; anything else ends the phase.
func (p *Pipeline) Discover(ctx context.Context, groups []config.TagGroup) (accepted []*models.Post, tagsSkipped int, err error) {
	start := time.Now()
	p.observer.PhaseStarted(PhaseDiscover, p.opts.MaxPosts)
	defer func() {
		if flushErr := p.store.Flush(); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		p.metrics.ObservePhase(PhaseDiscover, start)
		p.observer.PhaseFinished(PhaseDiscover, err)
	}()

	seen := make(map[string]bool)
	accept := func(c *models.Post) bool {
		return !seen[c.ID] && !p.store.Exists(c.ID)
	}

	for _, group := range groups {
		for _, tag := range group.Tags {
			remaining := p.opts.MaxPosts - len(accepted)
			if remaining <= 0 {
				p.logger.InfoWithFields("Post cap reached, skipping remaining tags", map[string]interface{}{
					"max_posts": p.opts.MaxPosts,
				})
				return accepted, tagsSkipped, nil
			}
			if err := ctx.Err(); err != nil {
				return accepted, tagsSkipped, err
			}

			log := p.logger.WithFields(map[string]interface{}{
				"company": group.Company,
				"tag":     tag,
			})
			log.DebugWithFields("Discovering posts", map[string]interface{}{
				"limit": remaining,
			})

			candidates, err := p.source.Discover(ctx, tag, accept, remaining)
			if err != nil {
				if errs.IsTyped(err) {
					log.WithError(err).Warn("Discovery failed for tag, skipping")
					tagsSkipped++
					continue
				}
				log.WithError(err).Error("Discovery aborted")
				return accepted, tagsSkipped, fmt.Errorf("failed to discover posts for tag %s: %w", tag, err)
			}

			added := 0
			for _, c := range candidates {
				if len(accepted) >= p.opts.MaxPosts {
					break
				}
				// The source may ignore the predicate; first group still wins.
				if !accept(c) {
					continue
				}
				post := c.Clone()
				post.Company = group.Company
				p.store.Upsert(post)
				seen[post.ID] = true
				accepted = append(accepted, post)
				p.metrics.PostDiscovered(group.Company)
				p.observer.ItemFinished(PhaseDiscover, post.ID, nil)
				added++
			}

			log.InfoWithFields("Tag processed", map[string]interface{}{
				"candidates": len(candidates),
				"accepted":   added,
				"total":      len(accepted),
			})
		}
	}

	return accepted, tagsSkipped, nil
}

// FillImages fetches and stores the image of every post in order. A fetch
// that keeps failing with a typed error or an empty payload is logged and
// skipped, leaving image_file unset for a later run. The store is flushed
// on every exit path.
func (p *Pipeline) FillImages(ctx context.Context, posts []*models.Post) (saved, skipped int, err error) {
	start := time.Now()
	p.observer.PhaseStarted(PhaseImages, len(posts))
	defer func() {
		if flushErr := p.store.Flush(); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		p.metrics.ObservePhase(PhaseImages, start)
		p.observer.PhaseFinished(PhaseImages, err)
	}()

	p.logger.InfoWithFields("Scraping images", map[string]interface{}{
		"posts": len(posts),
	})

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return saved, skipped, err
		}

		log := p.logger.WithField("post_id", post.ID)

		data, err := p.fetchAsset(ctx, post)
		if err != nil {
			if errs.IsTyped(err) {
				log.WithError(err).Warn("Image unavailable, skipping post")
				p.metrics.ImageSkipped()
				p.observer.ItemFinished(PhaseImages, post.ID, err)
				skipped++
				continue
			}
			log.WithError(err).Error("Image phase aborted")
			return saved, skipped, fmt.Errorf("failed to fetch image for post %s: %w", post.ID, err)
		}

		name, err := p.assets.Store(data)
		if err != nil {
			if errs.IsType(err, errs.ErrorTypeParsing) {
				log.WithError(err).Warn("Image payload rejected, skipping post")
				p.metrics.ImageSkipped()
				p.observer.ItemFinished(PhaseImages, post.ID, err)
				skipped++
				continue
			}
			log.WithError(err).Error("Failed to write image")
			return saved, skipped, fmt.Errorf("failed to store image for post %s: %w", post.ID, err)
		}

		if err := p.store.AttachImage(post.ID, name); err != nil {
			return saved, skipped, fmt.Errorf("failed to attach %s: %w", name, err)
		}

		p.metrics.ImageSaved()
		p.observer.ItemFinished(PhaseImages, post.ID, nil)
		saved++
		log.DebugWithFields("Image saved", map[string]interface{}{
			"file": name,
		})
	}

	p.logger.InfoWithFields("Image phase complete", map[string]interface{}{
		"saved":   saved,
		"skipped": skipped,
	})
	return saved, skipped, nil
}

// fetchAsset makes up to ImageAttempts tries with a fixed pause between
// them. Only typed errors and empty payloads are retried.
func (p *Pipeline) fetchAsset(ctx context.Context, post *models.Post) ([]byte, error) {
	policy := retry.Constant(p.opts.ImageAttempts, p.opts.ImageDelay)
	policy.ShouldRetry = errs.IsTyped
	policy.OnAttempt = func(_ int, err error) { p.metrics.FetchAttempt(err == nil) }
	policy.Logger = p.logger.WithField("post_id", post.ID)

	return retry.Value(ctx, policy, func(int) ([]byte, error) {
		data, err := p.source.FetchAsset(ctx, post.ImageURL)
		if err == nil && len(data) == 0 {
			err = errEmptyAsset
		}
		return data, err
	})
}

// FillComments fetches comments for every post, drops those shorter than
// MinCommentLength and appends the rest to the stored record. A typed
// source error skips the post; the store is flushed on every exit path.
func (p *Pipeline) FillComments(ctx context.Context, posts []*models.Post) (commented, saved, skipped int, err error) {
	start := time.Now()
	p.observer.PhaseStarted(PhaseComments, len(posts))
	defer func() {
		if flushErr := p.store.Flush(); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		p.metrics.ObservePhase(PhaseComments, start)
		p.observer.PhaseFinished(PhaseComments, err)
	}()

	p.logger.InfoWithFields("Scraping comments", map[string]interface{}{
		"posts": len(posts),
	})

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return commented, saved, skipped, err
		}

		log := p.logger.WithField("post_id", post.ID)

		page, err := p.fetchPostPage(ctx, post.ID)
		if err != nil {
			if errs.IsTyped(err) {
				log.WithError(err).Warn("Comments unavailable, skipping post")
				p.observer.ItemFinished(PhaseComments, post.ID, err)
				skipped++
				continue
			}
			log.WithError(err).Error("Comment phase aborted")
			return commented, saved, skipped, fmt.Errorf("failed to fetch comments for post %s: %w", post.ID, err)
		}

		kept := p.filterComments(page.Comments)

		current, ok := p.store.Get(post.ID)
		if !ok {
			return commented, saved, skipped, errs.NotFound("post %s is not in the content store", post.ID)
		}
		if page.Caption != "" {
			current.Caption = page.Caption
		}
		current.Comments = append(current.Comments, kept...)
		p.store.Upsert(current)

		commented++
		saved += len(kept)
		p.metrics.CommentsSaved(len(kept))
		p.observer.ItemFinished(PhaseComments, post.ID, nil)
		log.DebugWithFields("Comments saved", map[string]interface{}{
			"fetched": len(page.Comments),
			"kept":    len(kept),
		})
	}

	p.logger.InfoWithFields("Comment phase complete", map[string]interface{}{
		"posts":    commented,
		"comments": saved,
		"skipped":  skipped,
	})
	return commented, saved, skipped, nil
}

// fetchPostPage reads the post page from a PageSource, or only its
// comments from any other source.
func (p *Pipeline) fetchPostPage(ctx context.Context, postID string) (source.PostPage, error) {
	if ps, ok := p.source.(source.PageSource); ok {
		return ps.FetchPostPage(ctx, postID, p.opts.MaxComments)
	}
	comments, err := p.source.FetchComments(ctx, postID, p.opts.MaxComments)
	return source.PostPage{Comments: comments}, err
}

func (p *Pipeline) filterComments(comments []string) []string {
	kept := make([]string, 0, len(comments))
	for _, c := range comments {
		if utf8.RuneCountInString(c) < p.opts.MinCommentLength {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
