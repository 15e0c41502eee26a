// Package completion is the HTTP client for the remote completion endpoint.
// The endpoint answers in one of three JSON shapes depending on mode; the
// client resolves them into a single NormalizedResponse at this boundary so
// nothing downstream branches on mode again.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/orbitchat/chat-core/internal/retry"
	"github.com/orbitchat/chat-core/internal/types"
)

// Request is the request body for the completion endpoint. ClientMessageID
// doubles as the idempotency key: it must carry the same value on every
// retry of the same logical call.
type Request struct {
	RoomID          *uuid.UUID       `json:"room_id,omitempty"`
	Messages        []types.WireTurn `json:"messages"`
	Model           string           `json:"model"`
	ClientMessageID uuid.UUID        `json:"client_message_id"`
	SkipPersistence bool             `json:"skip_persistence"`
	Question        string           `json:"question,omitempty"`
}

// APIError represents a non-2xx response from the completion endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion: status %d: %s", e.StatusCode, e.Body)
}

// wireResponse covers every shape the endpoint is known to return:
// plain chat, OpenAI-style choices, and the search agent's answer document.
type wireResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	FinalAnswerMD string           `json:"final_answer_md"`
	Citations     []types.Citation `json:"citations"`
	TimeWarning   string           `json:"time_warning"`
}

// Client is a completion endpoint client.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// NewClient creates a new completion client.
func NewClient(baseURL, defaultModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Complete sends the turn list to the completion endpoint and returns the
// normalized response. Transport failures and 5xx/429 statuses are marked
// retryable; everything else propagates as-is.
func (c *Client) Complete(ctx context.Context, accessToken string, req *Request) (*types.NormalizedResponse, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.Retryable(apiErr)
		}
		return nil, apiErr
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return normalize(&wire, req.Model), nil
}

// normalize resolves the three wire shapes into one. Content may still be
// empty here; response validation is the orchestrator's step.
func normalize(wire *wireResponse, requestModel string) *types.NormalizedResponse {
	out := &types.NormalizedResponse{
		Model:       wire.Model,
		Citations:   wire.Citations,
		TimeWarning: wire.TimeWarning,
	}
	if out.Model == "" {
		out.Model = requestModel
	}

	switch {
	case wire.Content != "":
		out.Content = wire.Content
	case len(wire.Choices) > 0:
		out.Content = wire.Choices[0].Message.Content
	case wire.FinalAnswerMD != "":
		out.Content = wire.FinalAnswerMD
	}
	return out
}
