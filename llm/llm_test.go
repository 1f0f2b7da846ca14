package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	prompts []Prompt
	answer  func(p Prompt) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	return f.answer(p)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frenchRecord() *models.ProductRecord {
	return &models.ProductRecord{
		Name:           "Gobelet carton blanc 20cl",
		PricePerUnit:   models.StringPtr("0.05"),
		PricePerCarton: "50.00",
		UnitsPerCarton: models.StringPtr("1000"),
		PackagingType:  models.StringPtr("carton"),
		DetailURL:      models.StringPtr("https://shop.test/gobelet.html?a=1&b=2"),
		Barcode:        models.StringPtr("3760123456789"),
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", "http://llm.test/v1/chat/completions", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer sk-test" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"error":{"message":"bad key"}}`), nil
		}
		var body struct {
			Model     string  `json:"model"`
			MaxTokens int     `json:"max_tokens"`
			Temp      float32 `json:"temperature"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		if body.Model != "gpt-4" || body.MaxTokens != 100 || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":{"message":"unexpected request"}}`), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "echo: " + body.Messages[1].Content}}},
		})
	})

	cfg := config.DefaultConfig()
	cfg.APIKey = "sk-test"
	cfg.LLMBaseURL = "http://llm.test/v1/"
	client := NewOpenAIClientWithHTTP(cfg, &http.Client{Transport: transport})

	answer, err := client.Complete(context.Background(), Prompt{System: "sys", User: "hello", Temperature: 0.1, MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", answer)
}

func TestOpenAIClientServiceError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", "http://llm.test/v1/chat/completions",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":{"message":"boom"}}`))

	cfg := config.DefaultConfig()
	cfg.APIKey = "sk-test"
	cfg.LLMBaseURL = "http://llm.test/v1"
	client := NewOpenAIClientWithHTTP(cfg, &http.Client{Transport: transport})

	_, err := client.Complete(context.Background(), Prompt{User: "hello"})
	var svcErr *ServiceError
	assert.True(t, errors.As(err, &svcErr))
}

func TestCatalogSelectorSelect(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		err     error
		want    string
		wantErr bool
	}{
		{name: "plain url", answer: "https://shop.test/catalogue\n", want: "https://shop.test/catalogue"},
		{name: "quoted url", answer: ` "https://shop.test/boutique" `, want: "https://shop.test/boutique"},
		{name: "backticks", answer: "`https://shop.test/produits`", want: "https://shop.test/produits"},
		{name: "empty answer", answer: "  ", wantErr: true},
		{name: "service failure", err: errors.New("unavailable"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCompleter{answer: func(Prompt) (string, error) { return tt.answer, tt.err }}
			selector := NewCatalogSelector(fake, discardLogger())

			got, err := selector.Select(context.Background(), []string{"https://shop.test/catalogue", "https://shop.test/contact"})
			if tt.wantErr {
				var svcErr *ServiceError
				require.True(t, errors.As(err, &svcErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, fake.prompts, 1)
			p := fake.prompts[0]
			assert.InDelta(t, 0.1, p.Temperature, 1e-6)
			assert.Equal(t, 100, p.MaxTokens)
			assert.Contains(t, p.User, "https://shop.test/catalogue\nhttps://shop.test/contact")
		})
	}
}

func TestCatalogSelectorWithoutURLs(t *testing.T) {
	fake := &fakeCompleter{answer: func(Prompt) (string, error) { return "x", nil }}
	_, err := NewCatalogSelector(fake, nil).Select(context.Background(), nil)
	assert.Error(t, err)
	assert.Zero(t, fake.calls)
}

func TestTranslateKeepsNumbersAndURLs(t *testing.T) {
	fake := &fakeCompleter{answer: func(p Prompt) (string, error) {
		return "```json\n" + `{
			"name": "White paper cup 20cl",
			"price_per_unit": "9.99",
			"price_per_carton": "50,00",
			"units_per_carton": "1000",
			"packaging_type": "box",
			"detail_url": "https://elsewhere.test/",
			"barcode": null
		}` + "\n```", nil
	}}
	translator, err := NewTranslator(fake, 0, discardLogger())
	require.NoError(t, err)

	in := frenchRecord()
	before := in.Clone()
	out, err := translator.Translate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "White paper cup 20cl", out.Name)
	assert.Equal(t, "box", models.Deref(out.PackagingType))
	assert.Equal(t, "0.05", models.Deref(out.PricePerUnit))
	assert.Equal(t, "50.00", out.PricePerCarton)
	assert.Equal(t, "https://shop.test/gobelet.html?a=1&b=2", models.Deref(out.DetailURL))
	assert.Equal(t, "3760123456789", models.Deref(out.Barcode))
	assert.Equal(t, before, in, "input record must not change")

	require.Len(t, fake.prompts, 1)
	p := fake.prompts[0]
	assert.Equal(t, 500, p.MaxTokens)
	assert.Contains(t, p.User, `"detail_url": "https://shop.test/gobelet.html?a=1&b=2"`)
}

func TestTranslateKeepsEmptyCartonPrice(t *testing.T) {
	fake := &fakeCompleter{answer: func(Prompt) (string, error) {
		return `{"name": "White cup", "price_per_carton": ""}`, nil
	}}
	translator, err := NewTranslator(fake, 0, discardLogger())
	require.NoError(t, err)

	in := frenchRecord()
	in.PricePerCarton = ""
	out, err := translator.Translate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "White cup", out.Name)
	assert.Empty(t, out.PricePerCarton)
	assert.Equal(t, "3760123456789", models.Deref(out.Barcode))
}

func TestTranslateRejectsMalformedAnswers(t *testing.T) {
	answers := map[string]string{
		"not json":       "Here is your translation: White cup",
		"empty name":     `{"name": "", "price_per_carton": "50.00"}`,
		"unknown field":  `{"name": "Cup", "price_per_carton": "50.00", "colour": "white"}`,
		"trailing text":  `{"name": "Cup", "price_per_carton": "50.00"} hope this helps`,
		"truncated json": `{"name": "Cup", "price_per_`,
	}

	for name, answer := range answers {
		t.Run(name, func(t *testing.T) {
			fake := &fakeCompleter{answer: func(Prompt) (string, error) { return answer, nil }}
			translator, err := NewTranslator(fake, 0, nil)
			require.NoError(t, err)

			_, err = translator.Translate(context.Background(), frenchRecord())
			var svcErr *ServiceError
			assert.True(t, errors.As(err, &svcErr), "got %v", err)
		})
	}
}

func TestTranslateMemoizesIdenticalRecords(t *testing.T) {
	fake := &fakeCompleter{answer: func(p Prompt) (string, error) {
		name := "Cup"
		if strings.Contains(p.User, "Assiette") {
			name = "Plate"
		}
		return `{"name": "` + name + `", "price_per_carton": "1.00"}`, nil
	}}
	translator, err := NewTranslator(fake, 8, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	first, err := translator.Translate(ctx, frenchRecord())
	require.NoError(t, err)
	second, err := translator.Translate(ctx, frenchRecord())
	require.NoError(t, err)

	plate := frenchRecord()
	plate.Name = "Assiette ronde"
	third, err := translator.Translate(ctx, plate)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "Plate", third.Name)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1} `))
}
