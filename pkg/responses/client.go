package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
	"github.com/suremarc/computercraft/pkg/sse"
)

const (
	responsesPath = "/v1/responses"

	// LLM image generation can be slow; timeout is configured here, at
	// request time, not in the stream reader.
	defaultTimeout = 5 * time.Minute

	// defaultPartialImages asks the API for three progressive image chunks.
	defaultPartialImages = 3
)

// Tool is an entry in the request's tools array. Only the image generation
// tool is used by the relay.
type Tool struct {
	Type          string `json:"type"`
	PartialImages int    `json:"partial_images,omitempty"`
}

// Request is the subset of the Responses API request schema the relay
// needs: streamed structured output, optionally continuing a stored
// conversation, with image generation enabled.
type Request struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	Stream       bool   `json:"stream"`
	Tools        []Tool `json:"tools,omitempty"`
}

// Client talks to a hosted Responses API over HTTP and assembles streamed
// replies. One Stream call owns one response body; the assembler closes it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Responses API client for the given base URL
// (e.g. "https://api.openai.com") and API key.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Stream issues the request with streaming enabled and returns the open
// event stream. The caller owns the stream and must close it; Assemble does
// so on every exit path.
func (c *Client) Stream(ctx context.Context, req *Request) (*sse.Stream, error) {
	req.Stream = true
	if req.Tools == nil {
		req.Tools = []Tool{{Type: "image_generation", PartialImages: defaultPartialImages}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("requesting streamed response",
		zap.String("model", req.Model),
		zap.String("conversation", req.Conversation),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, respBody)
	}

	return sse.NewStream(resp)
}

// CreateReply issues the request and assembles the streamed events into one
// complete reply. Any failure means no reply was produced.
func (c *Client) CreateReply(ctx context.Context, req *Request) (*chat.Reply, error) {
	stream, err := c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	reply, err := Assemble(stream)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("assembled reply",
		zap.Int("paragraphs", len(reply.Paragraphs)),
		zap.Int("images", len(reply.Images)),
	)

	return reply, nil
}
