package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"hackers/pkg/hn"
)

// sessionCookie is the cookie Hacker News sets on a successful login.
const sessionCookie = "user"

// Login signs in with the site's login form and returns the session as a credential.
// The session cookie carries no expiry the server reports, so ExpiresAt stays zero.
func (s *Scraper) Login(ctx context.Context, username, password string) (*hn.Credential, error) {
	const op = "hackernews login"
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, hn.AuthError(op, hn.BadCredentials, errors.New("username and password are required"))
	}

	form := url.Values{"acct": {username}, "pw": {password}, "goto": {"news"}}
	loginURL := s.baseURL + "/login"

	// The cookie arrives on the redirect, so stop there
	client := *s.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	var token string
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				s.logger.Warn("Login request failed, will retry", "url", loginURL, "error", err)
				return hn.AuthError(op, hn.ServerUnreachable, err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("Login request completed",
				"username", username,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			if resp.StatusCode >= 500 {
				return hn.AuthError(op, hn.ServerUnreachable, fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			for _, c := range resp.Cookies() {
				if c.Name == sessionCookie && c.Value != "" {
					token = c.Value
				}
			}
			if token == "" {
				return retry.Unrecoverable(hn.AuthError(op, hn.BadCredentials, errors.New("bad login")))
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(s.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying login after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		var e *hn.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	return &hn.Credential{
		Service:   "hackernews",
		Account:   username,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Vote upvotes (or with up unset, unvotes) a post or comment using the session in cred.
// Voting for an item already in the requested state is a no-op.
func (s *Scraper) Vote(ctx context.Context, cred *hn.Credential, itemID int, up bool) error {
	op := "vote"
	if !up {
		op = "unvote"
	}
	if cred.IsEmpty() {
		return &hn.Error{Kind: hn.KindUnauthenticated, Op: op}
	}

	doc, err := s.fetchAs(ctx, hn.ItemPath(itemID, 0), "fetch_vote_links", cred.Token)
	if err != nil {
		return fmt.Errorf("fetch item %d: %w", itemID, err)
	}
	if doc.Find("a#logout").Length() == 0 {
		return &hn.Error{Kind: hn.KindUnauthenticated, Op: op, Err: errors.New("session expired")}
	}

	href, done := voteLink(doc, itemID, up)
	if done {
		s.logger.Info("Vote already in requested state", "item_id", itemID, "up", up)
		return nil
	}
	if href == "" {
		return hn.Errorf(hn.KindScraper, op, "no %s link for item %d", op, itemID)
	}

	if _, err := s.fetchAs(ctx, "/"+strings.TrimPrefix(href, "/"), op, cred.Token); err != nil {
		return fmt.Errorf("%s item %d: %w", op, itemID, err)
	}
	s.logger.Info("Vote recorded", "item_id", itemID, "up", up, "username", cred.Account)
	return nil
}

// voteLink finds the link that moves itemID to the requested vote state.
// done is set when the item is already in that state.
func voteLink(doc *goquery.Document, itemID int, up bool) (href string, done bool) {
	upLink := doc.Find(fmt.Sprintf("a#up_%d", itemID)).First()
	unLink := doc.Find(fmt.Sprintf("a#un_%d", itemID)).First()
	upHidden := upLink.Length() > 0 && upLink.HasClass("nosee")

	if up {
		if upLink.Length() > 0 && !upHidden {
			return upLink.AttrOr("href", ""), false
		}
		return "", unLink.Length() > 0 || upHidden
	}

	if unLink.Length() > 0 {
		return unLink.AttrOr("href", ""), false
	}
	if upHidden {
		// A hidden up arrow means the vote exists; its link undoes with how=un
		return strings.Replace(upLink.AttrOr("href", ""), "how=up", "how=un", 1), false
	}
	return "", upLink.Length() > 0
}

// isLoginPage reports whether the site answered with its bare login form.
func isLoginPage(doc *goquery.Document) bool {
	return doc.Find(`input[name="acct"]`).Length() > 0 && doc.Find("#hnmain").Length() == 0
}
