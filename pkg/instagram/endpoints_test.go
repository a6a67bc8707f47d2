package instagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPostURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/p/Cx1_a-B/", GetPostURL("Cx1_a-B"))
	assert.Equal(t, "", GetPostURL(""))
}

func TestGetTagURL(t *testing.T) {
	tests := []struct {
		tag      string
		expected string
	}{
		{"coffee", "https://www.instagram.com/explore/tags/coffee/"},
		{"#coffee", "https://www.instagram.com/explore/tags/coffee/"},
		{"  latte ", "https://www.instagram.com/explore/tags/latte/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetTagURL(tt.tag))
		})
	}
}

func TestExtractPostID(t *testing.T) {
	tests := []struct {
		href   string
		wantID string
		wantOK bool
	}{
		{"https://www.instagram.com/p/Cx1abc/", "Cx1abc", true},
		{"/p/Ab_c-9/?img_index=1", "Ab_c-9", true},
		{"/reel/Cx1abc/", "", false},
		{"https://www.instagram.com/explore/tags/coffee/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			id, ok := ExtractPostID(tt.href)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestMergeTags(t *testing.T) {
	caption := "Morning brew #Coffee #latteart and more #coffee #café_life"
	assert.Equal(t, []string{"coffee", "latteart", "café_life"}, MergeTags("#coffee", caption))
	assert.Equal(t, []string{"espresso"}, MergeTags("espresso", "no tags here"))
	assert.Equal(t, []string{}, MergeTags("", ""))
}

func TestNormalizeComment(t *testing.T) {
	assert.Equal(t, "great post love it", NormalizeComment("  great post\nlove it \n"))
	assert.Equal(t, "a b", NormalizeComment("a\r\nb"))
	assert.Equal(t, "", NormalizeComment("\n"))
}
