package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const catalogSystemPrompt = "You are an expert web analyst helping identify specific page types from a list of URLs."

const catalogUserPrompt = `From the following list of URLs found on an e-commerce website, identify the main product listing page (the page that shows multiple products, often the main category or shop page).

URL List:
%s

Please return ONLY the single URL that is most likely the main product listing page. Do not include any other text, explanation, or formatting.`

// CatalogSelector asks the text service which URL is the product catalog.
type CatalogSelector struct {
	completer Completer
	logger    *slog.Logger
}

// NewCatalogSelector returns a selector asking completer.
func NewCatalogSelector(completer Completer, logger *slog.Logger) *CatalogSelector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogSelector{completer: completer, logger: logger}
}

// Select returns the single URL the service picks. There is no retry and no
// local fallback: a failed call or an empty answer is a *ServiceError.
func (s *CatalogSelector) Select(ctx context.Context, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", &ServiceError{Op: "select catalog", Err: errors.New("no candidate urls")}
	}
	s.logger.Info("selecting product page from candidate links", slog.Int("candidates", len(urls)))

	answer, err := s.completer.Complete(ctx, Prompt{
		System:      catalogSystemPrompt,
		User:        fmt.Sprintf(catalogUserPrompt, strings.Join(urls, "\n")),
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		return "", &ServiceError{Op: "select catalog", Err: err}
	}

	selected := strings.Trim(strings.TrimSpace(answer), "\"'`")
	selected = strings.TrimSpace(selected)
	if selected == "" {
		return "", &ServiceError{Op: "select catalog", Err: errors.New("empty answer")}
	}

	s.logger.Info("selected product page", slog.String("url", selected))
	return selected, nil
}
