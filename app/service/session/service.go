package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"pollchat/app/client/llm"
	"pollchat/app/config"
	"pollchat/app/service/chatlog"
	"pollchat/app/service/control"

	_ "embed"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

//go:embed preamble_template.txt
var preambleTemplate string

const (
	startedMarker         = "User Started Session"
	defaultRequestTimeout = 30 * time.Second
)

var (
	ErrInvalidCredential = errors.New("invalid key")
	ErrNoCredential      = errors.New("no completion credential configured")
	ErrEmptyMessage      = errors.New("empty message")
)

var _ do.Shutdownable = (*Service)(nil)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// ResumePolicy decides what a submit appends when the session is idle.
type ResumePolicy string

const (
	// ResumePreserve appends the typed text as a user message.
	ResumePreserve ResumePolicy = "preserve"
	// ResumeMarker appends a fixed system marker and drops the typed text.
	ResumeMarker ResumePolicy = "marker"
)

type ClientFactory interface {
	NewClient(token string) (llm.Client, error)
}

type Options struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	Attentiveness  int
	ResumePolicy   ResumePolicy
	TokenMatch     control.Mode
	// Now overrides the wall clock, used by tests.
	Now func() time.Time
}

type Status struct {
	State         State  `json:"state"`
	Active        bool   `json:"active"`
	InFlight      bool   `json:"in_flight"`
	HasCredential bool   `json:"has_credential"`
	Ticks         int    `json:"ticks"`
	Elapsed       int    `json:"elapsed"`
	Error         string `json:"error,omitempty"`
}

// Service is the polling loop. While active it calls the completion client
// every interval with the whole log and appends what comes back.
type Service struct {
	ctx       context.Context
	opts      Options
	factory   ClientFactory
	detector  *control.Detector
	annotator *chatlog.Annotator
	log       *chatlog.Log

	mu         sync.Mutex
	client     llm.Client
	active     bool
	inFlight   bool
	timer      *time.Timer
	generation uint64
	ticks      int
	lastErr    error
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	s, err := NewService(
		do.MustInvoke[context.Context](di),
		do.MustInvoke[*llm.Service](di),
		Options{
			Interval:       cfg.Session.Interval,
			RequestTimeout: cfg.Session.RequestTimeout,
			Attentiveness:  cfg.Session.Attentiveness,
			ResumePolicy:   ResumePolicy(cfg.Session.ResumePolicy),
			TokenMatch:     control.Mode(cfg.Session.TokenMatch),
		},
	)
	if err != nil {
		return nil, err
	}

	if cfg.OpenAI.Token != "" {
		if err = s.SetCredential(cfg.OpenAI.Token); err != nil {
			return nil, fmt.Errorf("SetCredential: %w", err)
		}
	}

	return s, nil
}

func NewService(ctx context.Context, factory ClientFactory, opts Options) (*Service, error) {
	if opts.Interval <= 0 {
		return nil, oops.In("session").Errorf("interval must be positive, got %s", opts.Interval)
	}

	switch opts.ResumePolicy {
	case ResumePreserve, ResumeMarker:
	default:
		return nil, oops.In("session").Errorf("unknown resume policy %q", opts.ResumePolicy)
	}

	detector, err := control.NewDetector(opts.TokenMatch)
	if err != nil {
		return nil, oops.In("session").Wrap(err)
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	annotator := chatlog.NewAnnotator(opts.Now(), opts.Now)

	log := chatlog.NewLog(
		chatlog.System(buildPreamble(opts.Interval)),
		chatlog.System(fmt.Sprintf("Attentiveness score: %d", opts.Attentiveness)),
		annotator.Now(),
	)

	return &Service{
		ctx:       ctx,
		opts:      opts,
		factory:   factory,
		detector:  detector,
		annotator: annotator,
		log:       log,
	}, nil
}

func buildPreamble(interval time.Duration) string {
	seconds := strconv.FormatFloat(interval.Seconds(), 'f', -1, 64)

	return strings.TrimSpace(strings.ReplaceAll(preambleTemplate, "{interval}", seconds))
}

func (s *Service) Detector() *control.Detector {
	return s.detector
}

func (s *Service) Snapshot() []chatlog.Message {
	return s.log.Snapshot()
}

func (s *Service) SetCredential(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidCredential
	}

	client, err := s.factory.NewClient(key)
	if err != nil {
		return oops.In("session").Wrapf(err, "failed to create completion client")
	}

	s.mu.Lock()
	s.client = client
	s.lastErr = nil
	s.mu.Unlock()

	slog.Info("Completion credential configured")

	return nil
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.startLocked()
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked("stopped by user")
}

// Toggle starts an idle session or stops a running one and reports whether it is now active.
func (s *Service) Toggle() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.stopLocked("stopped by user")
		return false, nil
	}

	if err := s.startLocked(); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Service) Submit(text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return ErrNoCredential
	}

	if s.active {
		if text == "" {
			return ErrEmptyMessage
		}

		s.log.Append(chatlog.User(text), s.annotator.Now())
		return nil
	}

	if s.opts.ResumePolicy == ResumePreserve && text != "" {
		s.log.Append(chatlog.User(text))
	} else {
		s.log.Append(chatlog.System(startedMarker))
	}
	s.log.Append(s.annotator.Now())

	return s.startLocked()
}

// Tick runs one poll cycle. It is a no-op while idle, without a credential
// or while another completion call is in flight.
func (s *Service) Tick(ctx context.Context) error {
	s.mu.Lock()
	if !s.active || s.client == nil || s.inFlight {
		s.mu.Unlock()
		return nil
	}

	s.inFlight = true
	client := s.client
	snapshot := s.log.Snapshot()
	s.mu.Unlock()

	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	replies, err := client.Complete(callCtx, snapshot)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.ticks++

	if err != nil {
		s.lastErr = err
		s.log.TrimLastAndAppend(s.annotator.Now())
		slog.Error("Completion failed",
			"error", err,
			"tick", s.ticks,
			"duration", time.Since(start))
		s.armLocked()

		return err
	}

	s.lastErr = nil
	s.applyLocked(replies)

	slog.Debug("Tick",
		"tick", s.ticks,
		"replies", len(replies),
		"messages", s.log.Len(),
		"duration", time.Since(start))

	s.armLocked()

	return nil
}

func (s *Service) applyLocked(replies []chatlog.Message) {
	sleepIndex := pie.FindFirstUsing(replies, func(m chatlog.Message) bool {
		return s.detector.Detect(m.Content) == control.SignalSleep
	})

	if len(replies) == 0 {
		s.log.TrimLastAndAppend(s.annotator.Now())
	} else {
		s.log.Append(replies...)
		s.log.Append(s.annotator.Now())
	}

	if sleepIndex >= 0 {
		s.stopLocked("assistant went to sleep")
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:         StateIdle,
		Active:        s.active,
		InFlight:      s.inFlight,
		HasCredential: s.client != nil,
		Ticks:         s.ticks,
		Elapsed:       s.annotator.Elapsed(),
	}

	if s.active {
		status.State = StateRunning
	}

	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}

	return status
}

func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.cancelTimerLocked()

	return nil
}

func (s *Service) startLocked() error {
	if s.client == nil {
		return ErrNoCredential
	}

	if s.active {
		return nil
	}

	s.active = true
	s.armLocked()

	slog.Info("Session started", "telegram", true)

	return nil
}

func (s *Service) stopLocked(reason string) {
	if !s.active {
		return
	}

	s.active = false
	s.cancelTimerLocked()

	slog.Info("Session ended",
		"reason", reason,
		"ticks", s.ticks,
		"telegram", true)
}

// armLocked schedules the next tick. A tick is never scheduled while
// another one is in flight; the in-flight tick re-arms on completion.
func (s *Service) armLocked() {
	if !s.active || s.inFlight || s.timer != nil {
		return
	}

	s.generation++
	generation := s.generation

	s.timer = time.AfterFunc(s.opts.Interval, func() {
		s.onTimer(generation)
	})
}

func (s *Service) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.generation++
}

func (s *Service) onTimer(generation uint64) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	// errors are recorded and logged by Tick
	_ = s.Tick(s.ctx)
}
