// Package usecase runs one chat turn end to end: classify the message, pick a
// dialogue strategy, and persist the updated conversation.
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/intent"
	"restaurant-agent/internal/lock"
	applog "restaurant-agent/internal/log"
	"restaurant-agent/internal/metrics"
	"restaurant-agent/internal/strategy"
)

const (
	defaultStateTTL      = 24 * time.Hour
	defaultCallTimeout   = 30 * time.Second
	defaultMaxMessageLen = 2000
	defaultHistoryLimit  = 50
	eventPublishTimeout  = 2 * time.Second
	transcriptTimeout    = 5 * time.Second
)

// StateStore caches conversation states. PutIfVersion must fail with
// domain.ErrStateConflict when the stored version is no longer expected.
type StateStore interface {
	Get(ctx context.Context, key domain.StateKey) (domain.ConversationState, bool, error)
	Put(ctx context.Context, key domain.StateKey, state domain.ConversationState, ttl time.Duration) error
	PutIfVersion(ctx context.Context, key domain.StateKey, state domain.ConversationState, expected int64, ttl time.Duration) error
}

type IntentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Intent, error)
}

// StrategyDispatcher runs the strategy registered for a handler and returns
// its reply and name.
type StrategyDispatcher interface {
	Respond(ctx context.Context, id intent.HandlerID, text string, conv strategy.Context) (string, string, error)
}

// Transcript is the durable, append-only record of every message.
type Transcript interface {
	AppendMessage(ctx context.Context, userID, conversationID int64, role domain.Role, content string) error
}

// ConversationRegistry owns conversation ids and who they belong to.
type ConversationRegistry interface {
	CreateConversation(ctx context.Context, userID int64) (int64, error)
	CheckOwner(ctx context.Context, userID, conversationID int64) error
	GetHistory(ctx context.Context, conversationID int64, limit int) ([]domain.TranscriptEntry, error)
}

type EventPublisher interface {
	TurnCompleted(ctx context.Context, userID, conversationID int64, intent string) error
}

// Dependencies are the collaborators of TurnService. Registry, Transcript and
// Events are optional.
type Dependencies struct {
	State      StateStore
	Locker     lock.Locker
	Classifier IntentClassifier
	Strategies StrategyDispatcher
	Registry   ConversationRegistry
	Transcript Transcript
	Events     EventPublisher
	Logger     zerolog.Logger
}

// Options tune TurnService. Zero values pick the defaults.
type Options struct {
	Tenant           string
	StateTTL         time.Duration
	CallTimeout      time.Duration
	MaxMessageLength int
	HistoryLimit     int
}

type TurnService struct {
	state      StateStore
	locker     lock.Locker
	classifier IntentClassifier
	strategies StrategyDispatcher
	registry   ConversationRegistry
	transcript Transcript
	events     EventPublisher
	logger     zerolog.Logger

	tenant       string
	stateTTL     time.Duration
	callTimeout  time.Duration
	maxTextLen   int
	historyLimit int
}

type TurnInput struct {
	UserID         int64
	ConversationID int64
	Text           string
}

type TurnOutput struct {
	Response string
	Intent   domain.Intent
	Strategy string
}

func NewTurnService(deps Dependencies, opts Options) (*TurnService, error) {
	if deps.State == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if deps.Locker == nil {
		return nil, errors.New("usecase: locker must not be nil")
	}
	if deps.Classifier == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	if deps.Strategies == nil {
		return nil, errors.New("usecase: strategy dispatcher must not be nil")
	}
	tenant := strings.TrimSpace(opts.Tenant)
	if tenant == "" {
		tenant = domain.DefaultTenant
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLen
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &TurnService{
		state:        deps.State,
		locker:       deps.Locker,
		classifier:   deps.Classifier,
		strategies:   deps.Strategies,
		registry:     deps.Registry,
		transcript:   deps.Transcript,
		events:       deps.Events,
		logger:       deps.Logger,
		tenant:       tenant,
		stateTTL:     opts.StateTTL,
		callTimeout:  opts.CallTimeout,
		maxTextLen:   opts.MaxMessageLength,
		historyLimit: opts.HistoryLimit,
	}, nil
}

// Process handles one user message. On PERSISTENCE_FAILURE the returned
// TurnOutput still carries the response the user should see.
func (s *TurnService) Process(ctx context.Context, in TurnInput) (TurnOutput, error) {
	start := time.Now()
	logger := applog.WithContext(ctx, s.logger).With().
		Int64(applog.FieldUserID, in.UserID).
		Int64(applog.FieldConversationID, in.ConversationID).
		Logger()

	if err := s.validate(in); err != nil {
		metrics.IncTurn("", metrics.OutcomeRejected)
		return TurnOutput{}, err
	}
	if err := s.checkOwner(ctx, in.UserID, in.ConversationID); err != nil {
		metrics.IncTurn("", metrics.OutcomeRejected)
		return TurnOutput{}, err
	}

	s.appendTranscript(ctx, logger, in, domain.RoleUser, in.Text)

	out, cacheErr, err := s.runLocked(ctx, logger, in)
	if err != nil {
		metrics.IncTurn(string(out.Intent), failureOutcome(err))
		logger.Warn().Err(err).
			Int64(applog.FieldElapsedMS, time.Since(start).Milliseconds()).
			Msg("turn failed")
		return TurnOutput{}, err
	}

	s.appendTranscript(ctx, logger, in, domain.RoleAssistant, out.Response)
	s.publish(ctx, logger, in, out.Intent)

	outcome := metrics.OutcomeSuccess
	if cacheErr != nil {
		outcome = metrics.OutcomePersistence
	}
	metrics.IncTurn(string(out.Intent), outcome)

	ev := logger.Info()
	if cacheErr != nil {
		ev = logger.Error().Err(cacheErr)
	}
	ev.Str(applog.FieldIntent, string(out.Intent)).
		Str(applog.FieldStrategy, out.Strategy).
		Int64(applog.FieldElapsedMS, time.Since(start).Milliseconds()).
		Msg("turn processed")

	if cacheErr != nil {
		return out, cacheErr
	}
	return out, nil
}

// failureOutcome maps a failed turn's error to its metrics outcome.
func failureOutcome(err error) string {
	var uerr *Error
	if !errors.As(err, &uerr) {
		return metrics.OutcomeInternal
	}
	switch uerr.Code {
	case ErrorConversationBusy:
		return metrics.OutcomeBusy
	case ErrorClassificationFailure:
		return metrics.OutcomeClassification
	case ErrorStrategyFailure:
		return metrics.OutcomeStrategy
	case ErrorRateLimited:
		return metrics.OutcomeRateLimited
	case ErrorPersistenceFailure:
		return metrics.OutcomePersistence
	default:
		return metrics.OutcomeInternal
	}
}

// runLocked is the read, classify, respond, write section. Holding the
// conversation lock across all of it keeps concurrent turns of one
// conversation from overwriting each other's messages.
func (s *TurnService) runLocked(ctx context.Context, logger zerolog.Logger, in TurnInput) (TurnOutput, *Error, error) {
	key := domain.StateKey{Tenant: s.tenant, UserID: in.UserID, ConversationID: in.ConversationID}

	release, err := s.locker.Acquire(ctx, key.String())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return TurnOutput{}, nil, newError(ErrorConversationBusy, "lock_wait_aborted", err)
		}
		return TurnOutput{}, nil, newError(ErrorInternal, "lock_error", err)
	}
	defer release()

	current, readOK := s.readState(ctx, logger, key)
	working := current.WithMessage(domain.RoleUser, in.Text)

	got, err := s.classify(ctx, in.Text)
	if err != nil {
		return TurnOutput{}, nil, upstreamError(ErrorClassificationFailure, "classifier", err)
	}

	handler := intent.Route(got)
	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	response, name, err := s.strategies.Respond(sctx, handler, in.Text, strategy.Context{
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		History:        working.Messages,
	})
	cancel()
	if err != nil {
		return TurnOutput{Intent: got}, nil, upstreamError(ErrorStrategyFailure, "strategy", err)
	}

	out := TurnOutput{Response: response, Intent: got, Strategy: name}
	final := working.WithMessage(domain.RoleAssistant, response)

	pctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	// The lock lease can lapse under a stalled process; the versioned write
	// keeps a late writer from replacing a newer turn. After a failed read
	// there is no version to compare against, so the write is blind.
	if readOK {
		err = s.state.PutIfVersion(pctx, key, final, current.Version, s.stateTTL)
	} else {
		err = s.state.Put(pctx, key, final, s.stateTTL)
	}
	if errors.Is(err, domain.ErrStateConflict) {
		return TurnOutput{Intent: got}, nil, newError(ErrorConversationBusy, "state_conflict", err)
	}
	if err != nil {
		return out, newError(ErrorPersistenceFailure, "state_write_error", err), nil
	}
	return out, nil, nil
}

func (s *TurnService) classify(ctx context.Context, text string) (domain.Intent, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.classifier.Classify(cctx, text)
}

// readState never fails: an unreadable cache entry is treated like an empty
// conversation. The boolean is false when the read itself failed.
func (s *TurnService) readState(ctx context.Context, logger zerolog.Logger, key domain.StateKey) (domain.ConversationState, bool) {
	rctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	state, ok, err := s.state.Get(rctx, key)
	if err != nil {
		metrics.IncStateReadFailure()
		logger.Warn().Err(err).Msg("state read failed, starting from empty conversation")
		return domain.EmptyState(key), false
	}
	if !ok {
		return domain.EmptyState(key), true
	}
	return state, true
}

func (s *TurnService) validate(in TurnInput) error {
	if in.UserID <= 0 {
		return newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	if in.ConversationID <= 0 {
		return newError(ErrorInvalidInput, "invalid_conversation_id", nil)
	}
	if strings.TrimSpace(in.Text) == "" {
		return newError(ErrorInvalidInput, "empty_text", nil)
	}
	if utf8.RuneCountInString(in.Text) > s.maxTextLen {
		return newError(ErrorInvalidInput, "text_too_long", nil)
	}
	return nil
}

func (s *TurnService) checkOwner(ctx context.Context, userID, conversationID int64) error {
	if s.registry == nil {
		return nil
	}
	err := s.registry.CheckOwner(ctx, userID, conversationID)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConversationNotFound) {
		return newError(ErrorNotFound, "conversation_not_found", err)
	}
	return newError(ErrorInternal, "registry_error", err)
}

func (s *TurnService) appendTranscript(ctx context.Context, logger zerolog.Logger, in TurnInput, role domain.Role, content string) {
	if s.transcript == nil {
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptTimeout)
	defer cancel()
	if err := s.transcript.AppendMessage(tctx, in.UserID, in.ConversationID, role, content); err != nil {
		metrics.IncTranscriptFailure(string(role))
		logger.Warn().Err(err).Str("role", string(role)).Msg("transcript append failed")
	}
}

func (s *TurnService) publish(ctx context.Context, logger zerolog.Logger, in TurnInput, got domain.Intent) {
	if s.events == nil {
		return
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.TurnCompleted(ectx, in.UserID, in.ConversationID, string(got)); err != nil {
		metrics.IncEventPublishFailure()
		logger.Warn().Err(err).Str(applog.FieldEvent, "chat.message.created").Msg("event publish failed")
	}
}

// CreateConversation registers a new conversation owned by userID.
func (s *TurnService) CreateConversation(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	if s.registry == nil {
		return 0, newError(ErrorInternal, "registry_not_configured", nil)
	}
	id, err := s.registry.CreateConversation(ctx, userID)
	if err != nil {
		return 0, newError(ErrorInternal, "registry_error", err)
	}
	return id, nil
}

// History returns the durable transcript of a conversation, oldest first.
func (s *TurnService) History(ctx context.Context, userID, conversationID int64) ([]domain.TranscriptEntry, error) {
	if userID <= 0 {
		return nil, newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	if conversationID <= 0 {
		return nil, newError(ErrorInvalidInput, "invalid_conversation_id", nil)
	}
	if s.registry == nil {
		return nil, newError(ErrorInternal, "registry_not_configured", nil)
	}
	if err := s.checkOwner(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	entries, err := s.registry.GetHistory(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, newError(ErrorInternal, "history_error", err)
	}
	return entries, nil
}
