package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const translateSystemPrompt = "You are a professional translator specializing in e-commerce product descriptions."

const translateUserPrompt = `Translate the following product information from French to English.
Keep the numbers and URLs exactly as they are, only translate the text fields.
Return the data in the same format but with English translations.

Product Data:
%s

Return ONLY the translated JSON object, no additional text or explanation.`

// Translator turns a French product record into an English one.
type Translator struct {
	completer Completer
	cache     *lru.Cache[string, *models.ProductRecord]
	logger    *slog.Logger
}

// NewTranslator returns a translator memoizing up to cacheSize distinct
// records. A cacheSize of zero disables memoization.
func NewTranslator(completer Completer, cacheSize int, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Translator{completer: completer, logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, *models.ProductRecord](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("translation cache: %w", err)
		}
		t.cache = cache
	}
	return t, nil
}

// Translate returns a new record whose text fields are translated. Prices,
// counts, URLs and the barcode are always taken from rec. The input is never
// modified.
func (t *Translator) Translate(ctx context.Context, rec *models.ProductRecord) (*models.ProductRecord, error) {
	if rec == nil {
		return nil, &ServiceError{Op: "translate", Err: errors.New("nil record")}
	}

	payload, err := encodeRecord(rec)
	if err != nil {
		return nil, &ServiceError{Op: "translate", Err: err}
	}
	key := string(payload)
	if t.cache != nil {
		if cached, ok := t.cache.Get(key); ok {
			return cached.Clone(), nil
		}
	}

	answer, err := t.completer.Complete(ctx, Prompt{
		System:      translateSystemPrompt,
		User:        fmt.Sprintf(translateUserPrompt, payload),
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, &ServiceError{Op: "translate", Err: err}
	}

	translated, err := decodeRecord(stripCodeFence(answer))
	if err != nil {
		return nil, &ServiceError{Op: "translate", Err: fmt.Errorf("malformed answer: %w", err)}
	}

	translated.PricePerUnit = cloneString(rec.PricePerUnit)
	translated.PricePerCarton = rec.PricePerCarton
	translated.UnitsPerCarton = cloneString(rec.UnitsPerCarton)
	translated.DetailURL = cloneString(rec.DetailURL)
	translated.Barcode = cloneString(rec.Barcode)
	if translated.PackagingType == nil && rec.PackagingType != nil {
		translated.PackagingType = cloneString(rec.PackagingType)
	}

	if err := parser.ValidateRecord(translated); err != nil {
		return nil, &ServiceError{Op: "translate", Err: err}
	}

	if t.cache != nil {
		t.cache.Add(key, translated.Clone())
	}
	return translated, nil
}

func encodeRecord(rec *models.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

func decodeRecord(answer string) (*models.ProductRecord, error) {
	dec := json.NewDecoder(strings.NewReader(answer))
	dec.DisallowUnknownFields()

	var out models.ProductRecord
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after json object")
	}
	return &out, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
