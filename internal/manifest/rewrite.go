package manifest

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var reBaseURL = regexp.MustCompile(`(?s)(<BaseURL[^>]*>)(.*?)(</BaseURL>)`)

// RewriteBaseURLs replaces every BaseURL value with its file name alone,
// entity-escaped. Values that already hold entities are not escaped twice.
func RewriteBaseURLs(doc []byte) []byte {
	return reBaseURL.ReplaceAllFunc(doc, func(m []byte) []byte {
		parts := reBaseURL.FindSubmatch(m)
		return append(append(append([]byte{}, parts[1]...), baseURLValue(string(parts[2]))...), parts[3]...)
	})
}

func baseURLValue(v string) string {
	raw := html.UnescapeString(strings.TrimSpace(v))
	if i := strings.LastIndexAny(raw, `/\`); i >= 0 {
		raw = raw[i+1:]
	}
	return html.EscapeString(raw)
}
