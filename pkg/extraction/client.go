package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/gateway/httpclient"
	"github.com/sony/gobreaker"
)

// Invoker turns a pseudonymized transcript into a structured payload. The
// payload is opaque to the privacy core beyond locating pseudonym tokens.
type Invoker interface {
	Infer(ctx context.Context, pseudonymizedText string) (map[string]interface{}, error)
}

// Client calls a chat-completions style extraction model. It only ever
// receives pseudonymized text; the guardrail gate runs before every call.
type Client struct {
	apiKey    string
	baseURL   string
	modelName string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

func NewClient(apiKey, baseURL, modelName string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:        "extraction-model",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Extraction breaker state change")
		},
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		modelName: modelName,
		client:    httpclient.New(timeout),
		breaker:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *Client) Infer(ctx context.Context, pseudonymizedText string) (map[string]interface{}, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.infer(ctx, pseudonymizedText)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]interface{}), nil
}

func (c *Client) infer(ctx context.Context, text string) (map[string]interface{}, error) {
	if c.apiKey == "" {
		// Development fallback: echo the transcript as an unstructured note.
		return map[string]interface{}{"note": text}, nil
	}

	prompt := fmt.Sprintf(`Extract a structured health encounter record from the transcript below.
Treat tokens of the form PII-<uuid> as opaque identifiers and copy them verbatim.

%s

Return a JSON object with fields like: complaints, vitals, observations, advice.`, text)

	payload := map[string]interface{}{
		"model": c.modelName,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction model returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no response from extraction model")
	}

	var structured map[string]interface{}
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &structured); err != nil {
		return map[string]interface{}{"note": result.Choices[0].Message.Content}, nil
	}
	return structured, nil
}
