// Package openai provides an OpenAI-compatible generation-backend provider.
//
// It targets any chat-completions endpoint speaking the OpenAI wire format,
// including local LM Studio servers, which is the default deployment for
// chronicle.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/entrhq/chronicle/pkg/llm"
	"github.com/entrhq/chronicle/pkg/types"
	"github.com/openai/openai-go"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
//
// Streaming uses raw HTTP SSE handling rather than a client-library stream,
// which tolerates the format variations of local OpenAI-compatible servers
// (SSE comments, missing fields, nonstandard finish reasons).
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new provider with the given API key.
//
// If apiKey is empty it falls back to the OPENAI_API_KEY environment
// variable. If no base URL is supplied via WithBaseURL, OPENAI_BASE_URL is
// consulted before the public OpenAI endpoint is used.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (provide via parameter or OPENAI_API_KEY)")
	}

	p := &Provider{
		model:      "gpt-4o",
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	return p, nil
}

// StreamCompletion sends messages to the backend and streams back response
// chunks. Registered tools are forwarded in the request so the backend can
// decide whether to invoke them; tool-call deltas are accumulated and
// delivered as a single chunk when the backend finishes with a tool-call
// stop reason.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, messages, tools)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

// sendStreamRequest creates and sends the HTTP request for streaming.
func (p *Provider) sendStreamRequest(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": convertMessages(messages),
		"stream":   true,
	}
	if len(tools) > 0 {
		reqBody["tools"] = convertToolDefinitions(tools)
		reqBody["tool_choice"] = "auto"
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// sseDelta mirrors the subset of the streaming wire format we consume.
type sseDelta struct {
	Choices []struct {
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallAccumulator assembles tool-call deltas, which arrive fragmented
// across many SSE events, into complete invocations keyed by index.
type toolCallAccumulator struct {
	calls map[int]*types.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*types.ToolCall)}
}

func (a *toolCallAccumulator) add(index int, id, name, arguments string) {
	call, ok := a.calls[index]
	if !ok {
		call = &types.ToolCall{}
		a.calls[index] = call
	}
	if id != "" {
		call.ID = id
	}
	if name != "" {
		call.Name = name
	}
	call.Arguments += arguments
}

// collect returns the accumulated calls in index order.
func (a *toolCallAccumulator) collect() []types.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indices := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]types.ToolCall, 0, len(indices))
	for _, i := range indices {
		out = append(out, *a.calls[i])
	}
	return out
}

// processStreamResponse processes the SSE stream and sends chunks to the channel.
func (p *Provider) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	firstChunk := true
	finished := false
	acc := newToolCallAccumulator()

	for scanner.Scan() {
		line := scanner.Text()

		if !isValidSSELine(line) {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			if !finished {
				p.sendChunk(ctx, &llm.StreamChunk{ToolCalls: acc.collect(), Finished: true}, chunks)
			}
			return
		}

		if !p.processSSEChunk(ctx, data, &firstChunk, &finished, acc, chunks) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		chunks <- &llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)}
		return
	}

	// Stream ended without [DONE]; local servers sometimes just close.
	if !finished {
		p.sendChunk(ctx, &llm.StreamChunk{ToolCalls: acc.collect(), Finished: true}, chunks)
	}
}

// isValidSSELine checks if a line is a valid SSE data line.
func isValidSSELine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

// processSSEChunk processes a single SSE data payload. Returns false when
// streaming should stop (context canceled).
func (p *Provider) processSSEChunk(ctx context.Context, data string, firstChunk, finished *bool, acc *toolCallAccumulator, chunks chan<- *llm.StreamChunk) bool {
	var chunk sseDelta
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return true // Skip malformed chunks silently
	}

	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	streamChunk := &llm.StreamChunk{}

	if *firstChunk && choice.Delta.Role != "" {
		streamChunk.Role = choice.Delta.Role
		*firstChunk = false
	}

	streamChunk.Content = choice.Delta.Content

	for _, tc := range choice.Delta.ToolCalls {
		acc.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		streamChunk.Finished = true
		streamChunk.ToolCalls = acc.collect()
		*finished = true
	}

	if streamChunk.Role == "" && streamChunk.Content == "" && !streamChunk.Finished {
		return true
	}

	return p.sendChunk(ctx, streamChunk, chunks)
}

// sendChunk delivers a chunk unless the context has been canceled.
func (p *Provider) sendChunk(ctx context.Context, chunk *llm.StreamChunk, chunks chan<- *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		chunks <- &llm.StreamChunk{Error: ctx.Err()}
		return false
	}
}

// Complete sends messages to the backend and returns the full response.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	var content string
	var role string

	for chunk := range stream {
		if chunk.IsError() {
			return nil, chunk.Error
		}
		if chunk.Role != "" {
			role = chunk.Role
		}
		content += chunk.Content
	}

	if role == "" {
		role = string(types.RoleAssistant)
	}

	return &types.Message{
		Role:    types.MessageRole(role),
		Content: content,
	}, nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// convertMessages converts chronicle messages to the OpenAI wire format.
// Plain messages use the openai-go param helpers; assistant messages that
// carry tool calls are built as raw maps because the request body is
// marshaled as a whole anyway.
func convertMessages(messages []*types.Message) []interface{} {
	out := make([]interface{}, 0, len(messages))

	for _, msg := range messages {
		switch {
		case msg.Role == types.RoleAssistant && len(msg.ToolCalls) > 0:
			calls := make([]map[string]interface{}, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			m := map[string]interface{}{
				"role":       "assistant",
				"tool_calls": calls,
			}
			if msg.Content != "" {
				m["content"] = msg.Content
			}
			out = append(out, m)
		case msg.Role == types.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case msg.Role == types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case msg.Role == types.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}

	return out
}

// convertToolDefinitions converts tool definitions to the OpenAI function
// declaration format.
func convertToolDefinitions(tools []llm.ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return out
}
