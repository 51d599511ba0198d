package redirect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessTitle(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://trello.com/b/AbCd1234/q3-product-roadmap", "Q3 Product Roadmap"},
		{"https://trello.com/c/XyZ987/42-fix-login--bug", "Fix Login Bug"},
		{"https://trello.com/c/XyZ987/12-2024-planning", "Planning"},
		{"https://trello.com/b/AbCd1234/caf%C3%A9-menu", "Café Menu"},
		{"https://trello.com/b/AbCd1234/MIXED-case", "Mixed Case"},
		{"https://trello.com/b/AbCd1234/", ""},
		{"https://www.facebook.com/groups/some-group", ""},
		{"://not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessTitle(tt.url))
		})
	}
}

func TestRender(t *testing.T) {
	t.Run("ContainsPreviewTags", func(t *testing.T) {
		html, err := Render(Page{
			Title:          "Q3 Roadmap",
			PreviewURL:     "https://previews.s3.ap-southeast-1.amazonaws.com/abc.png",
			DestinationURL: "https://trello.com/b/x/q3-roadmap",
		})
		require.NoError(t, err)
		doc := string(html)

		assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
		assert.Contains(t, doc, `<title>Q3 Roadmap</title>`)
		assert.Contains(t, doc, `<meta property="og:image" content="https://previews.s3.ap-southeast-1.amazonaws.com/abc.png">`)
		assert.Contains(t, doc, `<meta property="og:url" content="https://trello.com/b/x/q3-roadmap">`)
		assert.Contains(t, doc, `<meta name="twitter:image" content="https://previews.s3.ap-southeast-1.amazonaws.com/abc.png">`)
		assert.Contains(t, doc, `<meta name="apple-mobile-web-app-title" content="Q3 Roadmap">`)
		assert.Regexp(t, `window\.location\.href = \s*"https:(\\/|/)(\\/|/)trello\.com`, doc)
		assert.Contains(t, doc, `<a href="https://trello.com/b/x/q3-roadmap">click here</a>`)
	})

	t.Run("EscapesValues", func(t *testing.T) {
		html, err := Render(Page{
			Title:          `"><script>alert(1)</script>`,
			PreviewURL:     "https://previews.example.com/a.png",
			DestinationURL: `https://example.com/?q=";alert(1);//`,
		})
		require.NoError(t, err)
		doc := string(html)

		assert.NotContains(t, doc, "<script>alert(1)</script>")
		assert.NotContains(t, doc, `q=";alert(1)`)
		assert.Contains(t, doc, "&lt;script&gt;")
	})

	t.Run("RejectsScriptURLsInLinks", func(t *testing.T) {
		html, err := Render(Page{DestinationURL: "javascript:alert(1)"})
		require.NoError(t, err)
		assert.NotContains(t, string(html), `href="javascript:alert(1)"`)
	})
}
