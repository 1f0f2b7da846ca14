package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

var (
	loginKeywords  = []string{"login", "sign in", "account", "my account"}
	loggedInMarker = []string{"logout", "my account"}
)

// LoginResolver finds a login form on the storefront and authenticates the
// session with it.
type LoginResolver struct {
	session *Session
	logger  *slog.Logger

	loginURL string
}

// NewLoginResolver returns a resolver that authenticates session.
func NewLoginResolver(session *Session, logger *slog.Logger) *LoginResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginResolver{session: session, logger: logger}
}

// FindCandidates returns the links on pageURL whose target or text mentions
// logging in, in document order.
func (r *LoginResolver) FindCandidates(ctx context.Context, pageURL string) ([]models.LoginCandidate, error) {
	page, err := r.session.Get(ctx, StageLogin, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	candidates := LoginCandidates(doc, page.URL)
	r.logger.Info("found potential login links", slog.Int("count", len(candidates)))
	for _, c := range candidates {
		r.logger.Debug("login candidate", slog.String("text", c.Text), slog.String("url", c.URL))
	}
	return candidates, nil
}

// LoginCandidates scans the anchors of doc. Scheme-relative hrefs become
// https; other relative hrefs are resolved against pageURL.
func LoginCandidates(doc *goquery.Document, pageURL string) []models.LoginCandidate {
	var candidates []models.LoginCandidate
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := a.Text()
		if !containsKeyword(strings.ToLower(href), strings.ToLower(text)) {
			return
		}

		target := strings.TrimSpace(href)
		if strings.HasPrefix(target, "//") {
			target = "https:" + target
		} else if resolved, err := resolveAgainst(pageURL, target); err == nil {
			target = resolved
		}
		candidates = append(candidates, models.LoginCandidate{
			Text: strings.TrimSpace(text),
			URL:  target,
		})
	})
	return candidates
}

func containsKeyword(href, text string) bool {
	for _, keyword := range loginKeywords {
		if strings.Contains(href, keyword) || strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// Login tries candidates in order and returns the session as soon as one
// login form submission lands on an authenticated page. A failing candidate
// is logged and skipped.
func (r *LoginResolver) Login(ctx context.Context, candidates []models.LoginCandidate, cred models.Credential) (*Session, error) {
	r.logger.Info("attempting login",
		slog.Any("credential", cred),
		slog.Int("candidates", len(candidates)),
	)

	attempts := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		ok, err := r.tryCandidate(ctx, candidate, cred)
		if err != nil {
			r.logger.Error("login attempt failed",
				slog.String("url", candidate.URL),
				slog.String("category", ErrorTypeLabel(err)),
				slog.Any("error", err),
			)
			continue
		}
		if ok {
			r.logger.Info("login successful", slog.String("url", candidate.URL))
			r.loginURL = candidate.URL
			return r.session, nil
		}
	}

	r.logger.Error("failed to login using any of the potential links", slog.Int("attempts", attempts))
	return nil, &AuthFailure{Attempts: attempts}
}

// LoginURL returns the candidate URL the last successful Login used.
func (r *LoginResolver) LoginURL() string {
	return r.loginURL
}

func (r *LoginResolver) tryCandidate(ctx context.Context, candidate models.LoginCandidate, cred models.Credential) (bool, error) {
	page, err := r.session.Get(ctx, StageLogin, candidate.URL)
	if err != nil {
		return false, err
	}
	doc, err := page.Document()
	if err != nil {
		return false, err
	}

	form, found := FindLoginForm(AnalyzeForms(doc))
	if !found {
		r.logger.Debug("no login form on candidate", slog.String("url", candidate.URL))
		return false, nil
	}

	action, err := formAction(page, form.Action)
	if err != nil {
		return false, err
	}
	r.logger.Info("found login form",
		slog.String("action", action),
		slog.String("method", form.Method),
		slog.Int("inputs", len(form.Inputs)),
	)

	payload := BuildLoginPayload(form, cred)
	var result *Page
	if form.Method == http.MethodPost {
		result, err = r.session.PostForm(ctx, StageLogin, action, payload)
	} else {
		result, err = r.session.GetWithQuery(ctx, StageLogin, action, payload)
	}
	if err != nil {
		return false, err
	}

	for _, marker := range loggedInMarker {
		if result.ContainsFold(marker) {
			return true, nil
		}
	}
	r.logger.Warn("login submission could not be confirmed",
		slog.String("action", action),
		slog.Int("status", result.StatusCode),
	)
	return false, nil
}

// formAction resolves a form action against the page holding the form. An
// empty action submits to the page itself.
func formAction(page *Page, action string) (string, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return page.URL, nil
	}
	if strings.HasPrefix(action, "//") {
		return "https:" + action, nil
	}
	return page.Resolve(action)
}
