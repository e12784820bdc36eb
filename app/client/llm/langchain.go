package llm

import (
	"context"
	"errors"
	"fmt"

	"pollchat/app/config"
	"pollchat/app/service/chatlog"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

type LangChainClient struct {
	llm *lcopenai.LLM
	cfg config.OpenAI
}

func newLangChainClient(cfg config.OpenAI, token string) (*LangChainClient, error) {
	model, err := lcopenai.New(
		lcopenai.WithToken(token),
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithHTTPClient(newHTTPClient()),
		lcopenai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain openai client: %w", err)
	}

	return &LangChainClient{
		llm: model,
		cfg: cfg,
	}, nil
}

func (c *LangChainClient) Complete(ctx context.Context, messages []chatlog.Message) ([]chatlog.Message, error) {
	response, err := c.llm.GenerateContent(
		ctx,
		toMessageContent(messages),
		llms.WithN(c.cfg.Choices),
		llms.WithTemperature(float64(c.cfg.Temperature)),
		llms.WithMaxTokens(c.cfg.MaxTokens),
	)
	if err != nil {
		if errors.Is(err, lcopenai.ErrEmptyResponse) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	result := make([]chatlog.Message, 0, len(response.Choices))
	for _, choice := range response.Choices {
		result = append(result, chatlog.Assistant(choice.Content))
	}

	return result, nil
}

func toMessageContent(messages []chatlog.Message) []llms.MessageContent {
	result := make([]llms.MessageContent, 0, len(messages))

	for _, msg := range messages {
		var role llms.ChatMessageType

		switch msg.Role {
		case chatlog.RoleUser:
			role = llms.ChatMessageTypeHuman
		case chatlog.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeSystem
		}

		result = append(result, llms.TextParts(role, msg.Content))
	}

	return result
}
