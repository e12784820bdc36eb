package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pollchat/app/config"
	"pollchat/app/service/chatlog"

	"github.com/samber/do"
)

const httpTimeout = 30 * time.Second

var (
	ErrUnauthorized  = errors.New("completion api rejected the credential")
	ErrEmptyToken    = errors.New("empty token")
	ErrUnknownClient = errors.New("unknown completion provider")
)

// Client sends the whole log and returns zero or more assistant messages,
// ordered like the returned choices.
type Client interface {
	Complete(ctx context.Context, messages []chatlog.Message) ([]chatlog.Message, error)
}

// Service builds completion clients from credentials supplied at runtime.
type Service struct {
	cfg config.OpenAI
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg.OpenAI), nil
}

func NewService(cfg config.OpenAI) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) NewClient(token string) (Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	switch s.cfg.Provider {
	case "openai", "":
		return newOpenAIClient(s.cfg, token), nil
	case "langchain":
		return newLangChainClient(s.cfg, token)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, s.cfg.Provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpTimeout,
	}
}
