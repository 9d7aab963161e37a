package tracking

import (
	"net/url"
	"strings"
)

// LinkBuilder renders the pixel and redirect URLs embedded in outbound
// email. The email-composition collaborator calls it after IssueToken.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder creates a builder for the given public tracking base URL.
func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL returns the 1x1 pixel URL for token.
func (b LinkBuilder) OpenURL(token string) string {
	return b.baseURL + "/track/open/" + url.PathEscape(token)
}

// ClickURL returns the redirect URL that records a click and forwards to target.
func (b LinkBuilder) ClickURL(token, target string) string {
	return b.baseURL + "/track/click/" + url.PathEscape(token) + "?url=" + url.QueryEscape(target)
}
