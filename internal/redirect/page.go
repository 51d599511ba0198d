// Package redirect builds the HTML pages that give a shared link its preview
// image and then forward the visitor to the real destination.
package redirect

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
	"unicode"
)

// Page holds the values rendered into a redirect document.
type Page struct {
	Title          string
	PreviewURL     string
	DestinationURL string
	Description    string
}

var pageTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>

    <meta name="description" content="{{.Description}}">
    <meta name="keywords" content="">

    <meta property="og:title" content="{{.Title}}">
    <meta property="og:description" content="{{.Description}}">
    <meta property="og:image" content="{{.PreviewURL}}">
    <meta property="og:url" content="{{.DestinationURL}}">
    <meta property="og:site_name" content="{{.DestinationURL}}">

    <meta name="twitter:card" content="summary_large_image">
    <meta name="twitter:title" content="{{.Title}}">
    <meta name="twitter:description" content="{{.Description}}">
    <meta name="twitter:image" content="{{.PreviewURL}}">
    <meta name="twitter:image:alt" content="{{.Title}}">

    <meta name="apple-mobile-web-app-capable" content="yes">
    <meta name="apple-mobile-web-app-status-bar-style" content="black">
    <meta name="apple-mobile-web-app-title" content="{{.Title}}">

    <script>
        window.onload = function() {
            window.location.href = {{.DestinationURL}};
        };
    </script>
</head>
<body>
    <noscript>
        <p>If you are not redirected automatically, please <a href="{{.DestinationURL}}">click here</a>.</p>
    </noscript>
</body>
</html>
`))

// Render produces the redirect document. Every value is escaped for the
// context it appears in.
func Render(p Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GuessTitle derives a title from a Trello board or card URL, whose last path
// segment is a slug such as "123-q3-roadmap". Other hosts yield "".
func GuessTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != "trello.com" {
		return ""
	}
	segments := strings.Split(u.EscapedPath(), "/")
	last, err := url.PathUnescape(segments[len(segments)-1])
	if err != nil {
		return ""
	}
	return deSlugify(last)
}

// deSlugify splits on hyphens, drops empty and purely numeric words and title-cases the rest.
func deSlugify(slug string) string {
	var words []string
	for _, w := range strings.Split(slug, "-") {
		if w == "" || isDigits(w) {
			continue
		}
		words = append(words, w)
	}
	return titleCase(strings.Join(words, " "))
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// titleCase upper-cases each letter that follows a non-letter and lower-cases the others.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && prevLetter:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
