package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/model"
)

// maxResponseBytes caps how much of a judge reply is read.
const maxResponseBytes = 4 << 20

// HTTPClient posts runs to {baseURL}/runCode.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient. The per-run deadline comes from the
// request context; timeout is an upper bound for the whole exchange.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Run(ctx context.Context, req execution.RunRequest) ([]model.ExecutionOutcome, error) {
	body, err := json.Marshal(newRunRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/runCode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrJudgeUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrJudgeUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", model.ErrJudgeUnavailable, resp.StatusCode)
	}
	return decodeResponse(raw)
}

var _ execution.Judge = (*HTTPClient)(nil)
