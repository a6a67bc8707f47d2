package instagram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"igtags/pkg/config"
	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
	"igtags/pkg/models"
	"igtags/pkg/ratelimit"
	"igtags/pkg/source"
)

// cookieBannerTimeout bounds the wait for the consent dialog.
const cookieBannerTimeout = 2 * time.Second

var (
	_ source.PostSource = (*Browser)(nil)
	_ source.PageSource = (*Browser)(nil)
)

// Browser is a source.PostSource driving headless Chrome. One tab is kept
// for the whole run so the login session carries over between pages.
// It is not safe for concurrent use.
type Browser struct {
	cfg         config.InstagramConfig
	client      *Client
	rateLimiter ratelimit.Limiter
	logger      logger.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser starts Chrome. Asset downloads go through client.
func NewBrowser(cfg config.InstagramConfig, client *Client, rateLimiter ratelimit.Limiter, log logger.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1280, 1024),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(userAgent))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx, emulation.SetUserAgentOverride(userAgent)); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		cfg:           cfg,
		client:        client,
		rateLimiter:   rateLimiter,
		logger:        logger.OrGlobal(log).WithField("component", "browser"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the chromedp allocator and browser contexts.
func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

// run executes actions in the browser tab, bounded by timeout and
// cancelled together with ctx.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(b.browserCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// pageFailure types a failed tab action as a network error so the caller
// skips the item. Once ctx is done its error is returned instead.
func pageFailure(ctx context.Context, err error, format string, args ...interface{}) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errs.New(errs.ErrorTypeNetwork, "%s: %v", fmt.Sprintf(format, args...), err)
}

// navigate loads url and waits for selector.
func (b *Browser) navigate(ctx context.Context, url, selector string) error {
	if err := ratelimit.Acquire(ctx, b.rateLimiter); err != nil {
		return err
	}

	b.logger.DebugWithFields("Navigating", map[string]interface{}{"url": url})
	if err := b.run(ctx, b.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return pageFailure(ctx, err, "navigate %s", url)
	}
	if selector == "" {
		return nil
	}
	if err := b.run(ctx, b.cfg.WaitTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.ErrorTypeParsing, "%s did not render %q: %v", url, selector, err)
	}
	return nil
}

func (b *Browser) html(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, b.cfg.WaitTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", pageFailure(ctx, err, "read page html")
	}
	return html, nil
}

// Discover opens the tag's explore page and returns accepted tiles.
func (b *Browser) Discover(ctx context.Context, tag string, accept func(*models.Post) bool, limit int) ([]*models.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	tagURL := GetTagURL(tag)
	if tagURL == "" {
		return nil, errs.New(errs.ErrorTypeConfig, "empty tag")
	}

	if err := b.navigate(ctx, tagURL, tagImageSelector); err != nil {
		return nil, err
	}
	html, err := b.html(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := parseTagPage(html)
	if err != nil {
		return nil, err
	}
	b.logger.InfoWithFields("Tag page loaded", map[string]interface{}{
		"tag":   tag,
		"tiles": len(candidates),
	})

	var posts []*models.Post
	for _, c := range candidates {
		p := models.NewPost(c.ID, c.ImageURL, c.Caption)
		p.Tags = MergeTags(tag, c.Caption)
		if accept != nil && !accept(p) {
			continue
		}
		posts = append(posts, p)
		if len(posts) >= limit {
			break
		}
	}
	return posts, nil
}

// FetchAsset downloads url over HTTP.
func (b *Browser) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	return b.client.DownloadAsset(ctx, url)
}

// FetchComments returns the comments of FetchPostPage.
func (b *Browser) FetchComments(ctx context.Context, postID string, limit int) ([]string, error) {
	page, err := b.FetchPostPage(ctx, postID, limit)
	if err != nil {
		return nil, err
	}
	return page.Comments, nil
}

// FetchPostPage opens the post page, expands the comment list and returns
// the caption with up to limit comment bodies.
func (b *Browser) FetchPostPage(ctx context.Context, postID string, limit int) (source.PostPage, error) {
	if err := b.navigate(ctx, GetPostURL(postID), captionSelector); err != nil {
		return source.PostPage{}, err
	}

	clicks := b.expandComments(ctx, limit)

	html, err := b.html(ctx)
	if err != nil {
		return source.PostPage{}, err
	}
	page, err := parsePostPage(html, limit)
	if err != nil {
		return source.PostPage{}, err
	}

	b.logger.DebugWithFields("Post page loaded", map[string]interface{}{
		"post_id":     postID,
		"comments":    len(page.Comments),
		"more_clicks": clicks,
	})
	return page, nil
}

// expandComments clicks "load more" while the button is present, about
// once per five comments wanted. Failures end the loop quietly.
func (b *Browser) expandComments(ctx context.Context, limit int) int {
	clicks := 0
	for clicks*5 < limit {
		var nodes []*cdp.Node
		err := b.run(ctx, b.cfg.WaitTimeout,
			chromedp.Nodes(loadMoreXPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
		)
		if err != nil || len(nodes) == 0 {
			break
		}
		if err := b.run(ctx, b.cfg.WaitTimeout, chromedp.MouseClickNode(nodes[0])); err != nil {
			b.logger.WithError(err).Debug("Load more click failed")
			break
		}
		clicks++

		timer := time.NewTimer(b.cfg.LoadMoreDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return clicks
		case <-timer.C:
		}
	}
	return clicks
}

// Authenticate logs in through the web form.
func (b *Browser) Authenticate(ctx context.Context, login, password string) error {
	if login == "" || password == "" {
		return errs.New(errs.ErrorTypeAuth, "login and password are required")
	}

	if err := b.navigate(ctx, GetLoginURL(), ""); err != nil {
		return err
	}

	if b.dismissCookieBanner(ctx) {
		b.logger.Debug("Cookie banner dismissed")
	}

	err := b.run(ctx, b.cfg.WaitTimeout,
		chromedp.WaitVisible(usernameInput, chromedp.ByQuery),
		chromedp.SendKeys(usernameInput, login, chromedp.ByQuery),
		chromedp.SendKeys(passwordInput, password, chromedp.ByQuery),
		chromedp.SendKeys(passwordInput, kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.ErrorTypeAuth, "login form not usable: %v", err)
	}

	if err := b.waitLeftLogin(ctx); err != nil {
		return err
	}

	b.logger.InfoWithFields("Logged in", map[string]interface{}{"login": login})
	return nil
}

// dismissCookieBanner clicks the consent button if it shows up quickly.
func (b *Browser) dismissCookieBanner(ctx context.Context) bool {
	err := b.run(ctx, cookieBannerTimeout,
		chromedp.Click(cookieBannerXPath, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		return false
	}
	timer := time.NewTimer(cookieBannerTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return true
}

// waitLeftLogin polls the location until the browser has moved off the
// login page.
func (b *Browser) waitLeftLogin(ctx context.Context) error {
	deadline := time.Now().Add(b.cfg.WaitTimeout)
	for {
		var location string
		if err := b.run(ctx, b.cfg.WaitTimeout, chromedp.Location(&location)); err != nil {
			return fmt.Errorf("read location: %w", err)
		}
		if !strings.Contains(location, LoginPath) {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ErrorTypeAuth, "login did not complete within %s", b.cfg.WaitTimeout)
		}

		timer := time.NewTimer(500 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
