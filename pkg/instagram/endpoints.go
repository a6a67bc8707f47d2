package instagram

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// LoginPath is the login form
	LoginPath = "/accounts/login/"
)

var (
	postLinkPattern = regexp.MustCompile(`/p/([a-zA-Z0-9_\-]+)/`)
	hashtagPattern  = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
)

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// GetTagURL constructs the explore page for a hashtag
func GetTagURL(tag string) string {
	tag = SanitizeTag(tag)
	if tag == "" {
		return ""
	}
	return fmt.Sprintf("%s/explore/tags/%s/", BaseURL, url.PathEscape(tag))
}

// GetLoginURL returns the login page
func GetLoginURL() string {
	return BaseURL + LoginPath
}

// ExtractPostID returns the shortcode from a post link. Relative links
// such as /p/abc/ are accepted.
func ExtractPostID(href string) (string, bool) {
	m := postLinkPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SanitizeTag removes a leading '#' and surrounding whitespace
func SanitizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "#")
}

// ExtractHashtags returns the hashtags in text without '#', in order of
// first appearance.
func ExtractHashtags(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		t := strings.ToLower(m[1])
		if seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// MergeTags puts the search tag first, followed by caption hashtags that
// differ from it.
func MergeTags(searchTag, caption string) []string {
	searchTag = strings.ToLower(SanitizeTag(searchTag))
	tags := []string{}
	if searchTag != "" {
		tags = append(tags, searchTag)
	}
	for _, t := range ExtractHashtags(caption) {
		if t != searchTag {
			tags = append(tags, t)
		}
	}
	return tags
}

// NormalizeComment flattens a comment body onto one line.
func NormalizeComment(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
