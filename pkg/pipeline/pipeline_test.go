package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"igtags/pkg/config"
	"igtags/pkg/content"
	errs "igtags/pkg/errors"
	"igtags/pkg/logger"
	"igtags/pkg/models"
	"igtags/pkg/source"
	"igtags/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSnapshot keeps the last saved table in memory and counts saves.
type memSnapshot struct {
	initial []*models.Post
	saved   []*models.Post
	saves   int
	failErr error
}

func (m *memSnapshot) Load() ([]*models.Post, error) { return m.initial, nil }
func (m *memSnapshot) Close() error                  { return nil }
func (m *memSnapshot) Name() string                  { return "memory" }

func (m *memSnapshot) Save(posts []*models.Post) error {
	m.saves++
	if m.failErr != nil {
		return m.failErr
	}
	m.saved = posts
	return nil
}

func (m *memSnapshot) find(id string) *models.Post {
	for _, p := range m.saved {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// stubSource serves canned candidates per tag and scripted asset and
// comment responses.
type stubSource struct {
	byTag       map[string][]*models.Post
	discoverErr map[string]error
	assets      map[string]func() ([]byte, error)
	comments    map[string][]string
	commentErr  map[string]error
	authErr     error

	discoverCalls []string
	assetCalls    map[string]int
	commentCalls  []string
	authCalls     int
}

func newStubSource() *stubSource {
	return &stubSource{
		byTag:       make(map[string][]*models.Post),
		discoverErr: make(map[string]error),
		assets:      make(map[string]func() ([]byte, error)),
		comments:    make(map[string][]string),
		commentErr:  make(map[string]error),
		assetCalls:  make(map[string]int),
	}
}

func (s *stubSource) Discover(ctx context.Context, tag string, accept func(*models.Post) bool, limit int) ([]*models.Post, error) {
	s.discoverCalls = append(s.discoverCalls, tag)
	if err := s.discoverErr[tag]; err != nil {
		return nil, err
	}
	var out []*models.Post
	for _, c := range s.byTag[tag] {
		if len(out) >= limit {
			break
		}
		if accept(c) {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *stubSource) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	s.assetCalls[url]++
	if fn, ok := s.assets[url]; ok {
		return fn()
	}
	return pngBytes, nil
}

func (s *stubSource) FetchComments(ctx context.Context, postID string, limit int) ([]string, error) {
	s.commentCalls = append(s.commentCalls, postID)
	if err := s.commentErr[postID]; err != nil {
		return nil, err
	}
	c := s.comments[postID]
	if len(c) > limit {
		c = c[:limit]
	}
	return c, nil
}

func (s *stubSource) Authenticate(ctx context.Context, login, password string) error {
	s.authCalls++
	return s.authErr
}

// pageSource also serves the caption shown on each post page.
type pageSource struct {
	*stubSource
	captions map[string]string
}

func (s *pageSource) FetchPostPage(ctx context.Context, postID string, limit int) (source.PostPage, error) {
	comments, err := s.FetchComments(ctx, postID, limit)
	if err != nil {
		return source.PostPage{}, err
	}
	return source.PostPage{Caption: s.captions[postID], Comments: comments}, nil
}

// pngBytes only needs to sniff as PNG; normalization is off in these tests.
var pngBytes = []byte("\x89PNG\r\n\x1a\n0000000000000000")

func post(id string) *models.Post {
	return models.NewPost(id, "https://cdn.example.com/"+id+".jpg", "caption "+id)
}

func testOptions() Options {
	return Options{
		MaxPosts:         50,
		MaxComments:      100,
		MinCommentLength: 2,
		ImageAttempts:    3,
		ImageDelay:       time.Millisecond,
		Login:            "user",
		Password:         "secret",
	}
}

type fixture struct {
	snap   *memSnapshot
	store  *content.Store
	src    *stubSource
	dir    string
	sink   *storage.Manager
	logger *logger.TestLogger
}

func newFixture(t *testing.T, existing ...*models.Post) *fixture {
	t.Helper()

	log := logger.NewTestLogger()
	snap := &memSnapshot{initial: existing}
	store, err := content.Open(snap, log, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	sink, err := storage.NewManager(dir, storage.ImageOptions{}, nil, log)
	require.NoError(t, err)

	return &fixture{
		snap:   snap,
		store:  store,
		src:    newStubSource(),
		dir:    dir,
		sink:   sink,
		logger: log,
	}
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	return New(f.store, f.src, f.sink, opts, f.logger, nil)
}

func TestDiscoverSkipsKnownPosts(t *testing.T) {
	known := post("known")
	known.Company = "acme"
	f := newFixture(t, known)

	f.src.byTag["coffee"] = []*models.Post{post("known"), post("fresh")}

	accepted, _, err := f.pipeline(testOptions()).Discover(context.Background(), []config.TagGroup{
		{Company: "other", Tags: []string{"coffee"}},
	})
	require.NoError(t, err)

	require.Len(t, accepted, 1)
	assert.Equal(t, "fresh", accepted[0].ID)
	assert.Equal(t, "other", accepted[0].Company)

	stored, ok := f.store.Get("known")
	require.True(t, ok)
	assert.Equal(t, "acme", stored.Company)
	assert.Equal(t, 2, f.store.Len())
}

func TestDiscoverFirstGroupWins(t *testing.T) {
	f := newFixture(t)
	f.src.byTag["espresso"] = []*models.Post{post("p1"), post("p2")}
	f.src.byTag["latte"] = []*models.Post{post("p2"), post("p3")}

	accepted, _, err := f.pipeline(testOptions()).Discover(context.Background(), []config.TagGroup{
		{Company: "first", Tags: []string{"espresso"}},
		{Company: "second", Tags: []string{"latte"}},
	})
	require.NoError(t, err)
	require.Len(t, accepted, 3)

	p2, ok := f.store.Get("p2")
	require.True(t, ok)
	assert.Equal(t, "first", p2.Company)

	p3, ok := f.store.Get("p3")
	require.True(t, ok)
	assert.Equal(t, "second", p3.Company)
}

func TestDiscoverRespectsGlobalCap(t *testing.T) {
	f := newFixture(t)
	f.src.byTag["a"] = []*models.Post{post("1"), post("2")}
	f.src.byTag["b"] = []*models.Post{post("3"), post("4")}
	f.src.byTag["c"] = []*models.Post{post("5")}

	opts := testOptions()
	opts.MaxPosts = 3

	accepted, _, err := f.pipeline(opts).Discover(context.Background(), []config.TagGroup{
		{Company: "x", Tags: []string{"a", "b"}},
		{Company: "y", Tags: []string{"c"}},
	})
	require.NoError(t, err)

	assert.Len(t, accepted, 3)
	assert.Equal(t, []string{"a", "b"}, f.src.discoverCalls)
	assert.False(t, f.store.Exists("4"))
	assert.False(t, f.store.Exists("5"))
}

func TestDiscoverFlushesOnce(t *testing.T) {
	f := newFixture(t)
	f.src.byTag["a"] = []*models.Post{post("1")}
	f.src.byTag["b"] = []*models.Post{post("2")}

	_, _, err := f.pipeline(testOptions()).Discover(context.Background(), []config.TagGroup{
		{Company: "x", Tags: []string{"a"}},
		{Company: "y", Tags: []string{"b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.snap.saves)
	assert.Len(t, f.snap.saved, 2)
}

func TestDiscoverTypedErrorSkipsTag(t *testing.T) {
	f := newFixture(t)
	f.src.discoverErr["broken"] = errs.New(errs.ErrorTypeParsing, "tag page did not render")
	f.src.byTag["ok"] = []*models.Post{post("1")}

	accepted, skipped, err := f.pipeline(testOptions()).Discover(context.Background(), []config.TagGroup{
		{Company: "x", Tags: []string{"broken", "ok"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, skipped)
	assert.Len(t, accepted, 1)
	assert.True(t, f.logger.HasMessage("Discovery failed for tag, skipping"))
}

func TestDiscoverUntypedErrorStillFlushes(t *testing.T) {
	f := newFixture(t)
	f.src.byTag["a"] = []*models.Post{post("1")}
	f.src.discoverErr["b"] = errors.New("browser crashed")

	_, _, err := f.pipeline(testOptions()).Discover(context.Background(), []config.TagGroup{
		{Company: "x", Tags: []string{"a", "b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")

	assert.Equal(t, 1, f.snap.saves)
	require.NotNil(t, f.snap.find("1"))
}

func TestFillImagesBoundedRetry(t *testing.T) {
	f := newFixture(t, post("bad"), post("good"))
	f.src.assets["https://cdn.example.com/bad.jpg"] = func() ([]byte, error) {
		return nil, errs.New(errs.ErrorTypeNetwork, "connection reset")
	}

	saved, skipped, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.NoError(t, err)

	assert.Equal(t, 3, f.src.assetCalls["https://cdn.example.com/bad.jpg"])
	assert.Equal(t, 1, f.src.assetCalls["https://cdn.example.com/good.jpg"])
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, skipped)
	assert.True(t, f.logger.HasMessage("Image unavailable, skipping post"))

	good, _ := f.store.Get("good")
	assert.Equal(t, "img_0.png", good.ImageFile)
	bad, _ := f.store.Get("bad")
	assert.Empty(t, bad.ImageFile)

	_, statErr := os.Stat(filepath.Join(f.dir, "img_0.png"))
	assert.NoError(t, statErr)
}

func TestFillImagesRetriesEmptyPayload(t *testing.T) {
	f := newFixture(t, post("empty"))
	f.src.assets["https://cdn.example.com/empty.jpg"] = func() ([]byte, error) {
		return nil, nil
	}

	saved, skipped, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.NoError(t, err)

	assert.Equal(t, 3, f.src.assetCalls["https://cdn.example.com/empty.jpg"])
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, skipped)
}

func TestFillImagesRecoversOnSecondAttempt(t *testing.T) {
	f := newFixture(t, post("flaky"))
	calls := 0
	f.src.assets["https://cdn.example.com/flaky.jpg"] = func() ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errs.New(errs.ErrorTypeServerError, "bad gateway")
		}
		return pngBytes, nil
	}

	saved, _, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.NoError(t, err)

	assert.Equal(t, 1, saved)
	assert.Equal(t, 2, calls)
}

func TestFillImagesPartialFlushOnFailure(t *testing.T) {
	var posts []*models.Post
	for i := 1; i <= 5; i++ {
		posts = append(posts, post(fmt.Sprintf("p%d", i)))
	}
	f := newFixture(t, posts...)
	f.src.assets["https://cdn.example.com/p3.jpg"] = func() ([]byte, error) {
		return nil, errors.New("driver disconnected")
	}

	_, _, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.Error(t, err)
	assert.Equal(t, 1, f.src.assetCalls["https://cdn.example.com/p3.jpg"])

	require.Equal(t, 1, f.snap.saves)
	for _, id := range []string{"p1", "p2"} {
		p := f.snap.find(id)
		require.NotNil(t, p)
		assert.NotEmpty(t, p.ImageFile, id)
	}
	for _, id := range []string{"p3", "p4", "p5"} {
		p := f.snap.find(id)
		require.NotNil(t, p)
		assert.Empty(t, p.ImageFile, id)
	}
}

func TestFillImagesSkipsUndecodablePayload(t *testing.T) {
	f := newFixture(t, post("junk"), post("fine"))
	f.sink = mustManager(t, f.dir, storage.ImageOptions{Normalize: true, Quality: 90})
	f.src.assets["https://cdn.example.com/junk.jpg"] = func() ([]byte, error) {
		return []byte("<html>not an image</html>"), nil
	}
	f.src.assets["https://cdn.example.com/fine.jpg"] = func() ([]byte, error) {
		return []byte("also not an image"), nil
	}

	saved, skipped, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.NoError(t, err)

	assert.Equal(t, 0, saved)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 1, f.src.assetCalls["https://cdn.example.com/junk.jpg"])
	assert.Len(t, f.store.QueryMissing(models.FieldImageFile), 2)
}

func TestFillImagesFlushErrorIsReported(t *testing.T) {
	f := newFixture(t, post("p1"))
	f.snap.failErr = errors.New("disk full")

	_, _, err := f.pipeline(testOptions()).FillImages(context.Background(), f.store.All())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestResumeReturnsOnlySkippedPosts(t *testing.T) {
	f := newFixture(t, post("a"), post("b"), post("c"))
	f.src.assets["https://cdn.example.com/b.jpg"] = func() ([]byte, error) {
		return nil, errs.NotFound("gone")
	}

	opts := testOptions()
	opts.Images = true
	res, err := f.pipeline(opts).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ImagesSaved)
	assert.Equal(t, 1, res.ImagesSkipped)

	reopened, err := content.Open(&memSnapshot{initial: f.snap.saved}, f.logger, nil)
	require.NoError(t, err)

	missing := reopened.QueryMissing(models.FieldImageFile)
	require.Len(t, missing, 1)
	assert.Equal(t, "b", missing[0].ID)
}

func TestRunImagesWithoutDiscoveryUsesMissingSet(t *testing.T) {
	done := post("done")
	done.ImageFile = "img_7.jpg"
	f := newFixture(t, done, post("todo"))

	opts := testOptions()
	opts.Images = true
	_, err := f.pipeline(opts).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, f.src.assetCalls["https://cdn.example.com/done.jpg"])
	assert.Equal(t, 1, f.src.assetCalls["https://cdn.example.com/todo.jpg"])

	stored, _ := f.store.Get("done")
	assert.Equal(t, "img_7.jpg", stored.ImageFile)
}

func TestRunImagesAfterDiscoveryUsesDiscoveredSet(t *testing.T) {
	f := newFixture(t, post("old"))
	f.src.byTag["tea"] = []*models.Post{post("new")}

	opts := testOptions()
	opts.Discover = true
	opts.Images = true
	res, err := f.pipeline(opts).Run(context.Background(), []config.TagGroup{
		{Company: "x", Tags: []string{"tea"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 1, res.ImagesSaved)
	assert.Equal(t, 0, f.src.assetCalls["https://cdn.example.com/old.jpg"])
}

func TestFillCommentsFiltersAndKeepsImage(t *testing.T) {
	p := post("p1")
	f := newFixture(t, p)
	f.src.comments["p1"] = []string{"a", "hi", "great post", "🔥"}

	pl := f.pipeline(testOptions())
	targets := f.store.All()

	_, _, err := pl.FillImages(context.Background(), targets)
	require.NoError(t, err)

	commented, saved, skipped, err := pl.FillComments(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, 1, commented)
	assert.Equal(t, 2, saved)
	assert.Equal(t, 0, skipped)

	stored, ok := f.store.Get("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"hi", "great post"}, stored.Comments)
	assert.Equal(t, 2, stored.CommentCount())
	assert.Equal(t, "img_0.png", stored.ImageFile)
}

func TestFillCommentsTypedErrorSkipsPost(t *testing.T) {
	f := newFixture(t, post("p1"), post("p2"))
	f.src.commentErr["p1"] = errs.New(errs.ErrorTypeParsing, "post page did not render")
	f.src.comments["p2"] = []string{"nice shot"}

	commented, _, skipped, err := f.pipeline(testOptions()).FillComments(context.Background(), f.store.All())
	require.NoError(t, err)

	assert.Equal(t, 1, commented)
	assert.Equal(t, 1, skipped)
	assert.True(t, f.logger.HasMessage("Comments unavailable, skipping post"))
	p1, _ := f.store.Get("p1")
	assert.Empty(t, p1.Comments)
}

func TestFillCommentsUntypedErrorAbortsAfterFlush(t *testing.T) {
	f := newFixture(t, post("p1"), post("p2"))
	f.src.comments["p1"] = []string{"first"}
	f.src.commentErr["p2"] = errors.New("session lost")

	_, _, _, err := f.pipeline(testOptions()).FillComments(context.Background(), f.store.All())
	require.Error(t, err)

	require.Equal(t, 1, f.snap.saves)
	assert.Equal(t, []string{"first"}, f.snap.find("p1").Comments)
	assert.Empty(t, f.snap.find("p2").Comments)
}

func TestRunCommentsRequireCredentials(t *testing.T) {
	f := newFixture(t, post("p1"))

	opts := testOptions()
	opts.Comments = true
	opts.Password = ""

	_, err := f.pipeline(opts).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfig))
	assert.Equal(t, 0, f.src.authCalls)
	assert.Empty(t, f.src.commentCalls)
	assert.Equal(t, 0, f.snap.saves)
}

func TestRunAuthenticatesOnceBeforeComments(t *testing.T) {
	f := newFixture(t, post("p1"), post("p2"))
	f.src.comments["p1"] = []string{"one"}
	f.src.comments["p2"] = []string{"two"}

	opts := testOptions()
	opts.Comments = true
	res, err := f.pipeline(opts).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.src.authCalls)
	assert.Equal(t, []string{"p1", "p2"}, f.src.commentCalls)
	assert.Equal(t, 2, res.PostsCommented)
}

func TestRunAuthenticationFailureStopsRun(t *testing.T) {
	f := newFixture(t, post("p1"))
	f.src.authErr = errs.New(errs.ErrorTypeAuth, "wrong password")

	opts := testOptions()
	opts.Comments = true
	_, err := f.pipeline(opts).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
	assert.Empty(t, f.src.commentCalls)
}

func TestFillImagesStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, post("p1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.pipeline(testOptions()).FillImages(ctx, f.store.All())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.snap.saves)
}

func mustManager(t *testing.T, dir string, opts storage.ImageOptions) *storage.Manager {
	t.Helper()
	m, err := storage.NewManager(dir, opts, nil, logger.NewNopLogger())
	require.NoError(t, err)
	return m
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) PhaseStarted(phase string, total int) {
	r.events = append(r.events, fmt.Sprintf("start %s %d", phase, total))
}

func (r *recordingObserver) ItemFinished(phase, postID string, err error) {
	r.events = append(r.events, fmt.Sprintf("item %s %s %t", phase, postID, err == nil))
}

func (r *recordingObserver) PhaseFinished(phase string, err error) {
	r.events = append(r.events, fmt.Sprintf("finish %s %t", phase, err == nil))
}

func TestObserverReceivesProgress(t *testing.T) {
	f := newFixture(t, post("a"), post("b"))
	f.src.assets["https://cdn.example.com/b.jpg"] = func() ([]byte, error) {
		return nil, errs.NotFound("gone")
	}

	obs := &recordingObserver{}
	opts := testOptions()
	opts.Images = true
	opts.ImageAttempts = 1

	_, err := f.pipeline(opts).WithObserver(obs).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start images 2",
		"item images a true",
		"item images b false",
		"finish images true",
	}, obs.events)
}

func TestFillCommentsRefreshesCaptionFromPostPage(t *testing.T) {
	f := newFixture(t, post("p1"), post("p2"))
	f.src.comments["p1"] = []string{"nice"}
	f.src.comments["p2"] = []string{"cool"}
	src := &pageSource{stubSource: f.src, captions: map[string]string{
		"p1": "Full caption from the post page #coffee",
	}}

	p := New(f.store, src, f.sink, testOptions(), f.logger, nil)
	commented, _, _, err := p.FillComments(context.Background(), f.store.All())
	require.NoError(t, err)
	assert.Equal(t, 2, commented)

	p1, _ := f.store.Get("p1")
	assert.Equal(t, "Full caption from the post page #coffee", p1.Caption)
	assert.Equal(t, []string{"nice"}, p1.Comments)

	p2, _ := f.store.Get("p2")
	assert.Equal(t, "caption p2", p2.Caption, "an empty page caption keeps the stored one")
	assert.Equal(t, "Full caption from the post page #coffee", f.snap.find("p1").Caption)
}
