package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"pollchat/app/config"
	"pollchat/app/service/chatlog"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	cfg    config.OpenAI
}

func newOpenAIClient(cfg config.OpenAI, token string) *OpenAIClient {
	clientConfig := openai.DefaultConfig(token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = newHTTPClient()

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []chatlog.Message) ([]chatlog.Message, error) {
	request := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		request = append(request, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	aiResponse, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               c.cfg.Model,
			Messages:            request,
			N:                   c.cfg.Choices,
			Temperature:         temperature(c.cfg.Temperature),
			MaxCompletionTokens: c.cfg.MaxTokens,
		},
	)
	if err != nil {
		if isUnauthorized(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	result := make([]chatlog.Message, 0, len(aiResponse.Choices))
	for _, choice := range aiResponse.Choices {
		result = append(result, chatlog.Assistant(choice.Message.Content))
	}

	return result, nil
}

// temperature keeps an explicit zero on the wire, the request field is omitempty.
func temperature(value float32) float32 {
	if value == 0 {
		return math.SmallestNonzeroFloat32
	}

	return value
}

func isUnauthorized(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}

	return false
}
