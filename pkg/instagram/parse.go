package instagram

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igtags/pkg/errors"
	"igtags/pkg/source"
)

const (
	tagImageSelector    = "div._aagv > img"
	commentSelector     = "._a9ym"
	commentBodySelector = "._a9zr span"
	captionSelector     = "._a9zs"
	loadMoreXPath       = `//button[.//*[local-name()='svg' and @aria-label='Load more comments']]`
	usernameInput       = `input[name="username"]`
	passwordInput       = `input[name="password"]`
	cookieBannerXPath   = `//button[contains(., 'Allow all cookies') or contains(., 'Only allow essential cookies') or contains(., 'Decline optional cookies')]`
)

// candidate is one tile on a tag page.
type candidate struct {
	ID       string
	ImageURL string
	Caption  string
}

// parseTagPage extracts post tiles from a rendered tag page. The post link
// is the enclosing anchor of each image.
func parseTagPage(html string) ([]candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, "failed to parse tag page: %v", err)
	}

	var out []candidate
	seen := make(map[string]bool)
	var parseErr error
	doc.Find(tagImageSelector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")

		href, ok := img.Closest("a").Attr("href")
		if !ok {
			parseErr = errs.New(errs.ErrorTypeParsing, "image %s has no enclosing post link", src)
			return false
		}
		id, ok := ExtractPostID(href)
		if !ok {
			parseErr = errs.New(errs.ErrorTypeParsing, "irregular post link %q", href)
			return false
		}
		if seen[id] {
			return true
		}
		seen[id] = true

		out = append(out, candidate{
			ID:       id,
			ImageURL: resolveURL(src),
			Caption:  strings.TrimSpace(alt),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return out, nil
}

// parsePostPage reads the caption and up to limit normalized comment
// bodies from a rendered post page. The caption is the first captionSelector
// match, which the page renders above the comment list.
func parsePostPage(html string, limit int) (source.PostPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return source.PostPage{}, errs.New(errs.ErrorTypeParsing, "failed to parse post page: %v", err)
	}

	page := source.PostPage{Comments: []string{}}
	if first := doc.Find(captionSelector).First(); first.Length() > 0 {
		page.Caption = strings.TrimSpace(first.Text())
	}

	doc.Find(commentSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(page.Comments) >= limit {
			return false
		}
		body := s.Find(commentBodySelector).First()
		if body.Length() == 0 {
			return true
		}
		page.Comments = append(page.Comments, NormalizeComment(body.Text()))
		return true
	})
	return page, nil
}

func resolveURL(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.IsAbs() {
		return src
	}
	base, _ := url.Parse(BaseURL)
	return base.ResolveReference(u).String()
}
