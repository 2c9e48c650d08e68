package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// LoadCSRFToken fetches the dashboard root page and returns the content of
// its <meta name="csrf-token"> tag. A page without the tag yields "" and no
// error; requests then go out without the header.
func LoadCSRFToken(ctx context.Context, httpClient *http.Client, baseURL string) (string, error) {
	url := strings.TrimRight(baseURL, "/") + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Method: http.MethodGet, Path: "/", Status: resp.StatusCode}
	}
	if isLoginRedirect(resp) {
		return "", &AuthError{Method: http.MethodGet, Path: "/"}
	}

	return MetaToken(resp.Body)
}

// MetaToken returns the content of the first <meta name="csrf-token">.
func MetaToken(r io.Reader) (string, error) {
	return findAttr(r, "meta", "name", "csrf-token", "content")
}

// FormToken returns the value of the first <input name="csrf_token">.
func FormToken(r io.Reader) (string, error) {
	return findAttr(r, "input", "name", "csrf_token", "value")
}

// findAttr scans r for the first tag whose key attribute equals match and
// returns its want attribute.
func findAttr(r io.Reader, tag, key, match, want string) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", nil
			}
			return "", fmt.Errorf("parsing html: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if t.Data != tag {
				continue
			}

			var matched bool
			var value string
			for _, a := range t.Attr {
				switch a.Key {
				case key:
					matched = strings.EqualFold(a.Val, match)
				case want:
					value = a.Val
				}
			}
			if matched {
				return value, nil
			}
		}
	}
}
