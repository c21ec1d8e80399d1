package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sahayak-health/platform/pkg/gateway/httpclient"
)

// HTTPChecker calls a managed safety-check endpoint. A non-200 answer or a
// transport error is returned as an error, never as a pass.
type HTTPChecker struct {
	endpoint string
	client   *http.Client
}

func NewHTTPChecker(endpoint string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		endpoint: endpoint,
		client:   httpclient.New(timeout),
	}
}

func (c *HTTPChecker) Check(ctx context.Context, text string) (models.GuardrailVerdict, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return models.GuardrailVerdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.GuardrailVerdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.GuardrailVerdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GuardrailVerdict{}, fmt.Errorf("guardrail endpoint returned %d", resp.StatusCode)
	}

	var verdict models.GuardrailVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return models.GuardrailVerdict{}, err
	}
	return verdict, nil
}
