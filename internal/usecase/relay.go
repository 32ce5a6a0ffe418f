package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"findost/internal/domain"
	"findost/internal/integrations/apikey"
)

const (
	defaultModel            = "gemini-1.5-flash"
	defaultMaxOutputTokens  = 1000
	defaultHistoryLimit     = 10
	defaultMaxMessageLength = 2000
)

// LLMClient is the hosted model used for both the topic check and the reply.
type LLMClient interface {
	// Ready reports whether the client can reach the model at all, e.g. an
	// API key is configured.
	Ready(ctx context.Context) error
	Generate(ctx context.Context, model, prompt string) (string, error)
	Converse(ctx context.Context, conv domain.Conversation) (string, error)
}

// TranscriptStore keeps a server-side record of relay exchanges per user.
type TranscriptStore interface {
	RecentExchanges(ctx context.Context, userID string, limit int) ([]domain.Exchange, error)
	SaveExchange(ctx context.Context, ex domain.Exchange) error
}

// VerdictCache remembers topic verdicts so repeated questions skip the moderation call.
type VerdictCache interface {
	Lookup(ctx context.Context, message string) (onTopic bool, found bool, err error)
	Store(ctx context.Context, message string, onTopic bool) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type Options struct {
	ChatModel        string
	ModerationModel  string
	MaxOutputTokens  int
	HistoryLimit     int
	MaxMessageLength int
}

type Option func(*Relay)

func WithTranscripts(s TranscriptStore) Option {
	return func(r *Relay) {
		r.transcripts = s
	}
}

func WithVerdictCache(c VerdictCache) Option {
	return func(r *Relay) {
		r.verdicts = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// Relay moderates chat messages and forwards finance questions to the model.
type Relay struct {
	llm         LLMClient
	transcripts TranscriptStore
	verdicts    VerdictCache
	logger      *zap.Logger
	opts        Options

	pick func(n int) int
	now  func() time.Time
}

type ReplyInput struct {
	Message string
	Profile domain.Profile
	History []domain.HistoryEntry
	UserID  string
}

type ReplyOutput struct {
	Reply   string
	OnTopic bool
}

func NewRelay(llm LLMClient, opts Options, extra ...Option) (*Relay, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	opts.ChatModel = strings.TrimSpace(opts.ChatModel)
	if opts.ChatModel == "" {
		opts.ChatModel = defaultModel
	}
	opts.ModerationModel = strings.TrimSpace(opts.ModerationModel)
	if opts.ModerationModel == "" {
		opts.ModerationModel = opts.ChatModel
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = defaultMaxOutputTokens
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLength
	}

	r := &Relay{
		llm:    llm,
		logger: zap.NewNop(),
		opts:   opts,
		pick:   rand.IntN,
		now:    time.Now,
	}
	for _, opt := range extra {
		opt(r)
	}
	return r, nil
}

// Ready fails with NOT_CONFIGURED when no API key is configured. Any other
// failure to resolve the key, such as an unreachable parameter store, is an
// upstream error.
func (r *Relay) Ready(ctx context.Context) error {
	err := r.llm.Ready(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apikey.ErrMissing):
		return newError(ErrorNotConfigured, "missing_api_key", err)
	default:
		return newError(ErrorUpstream, "key_lookup_error", err)
	}
}

func (r *Relay) Reply(ctx context.Context, in ReplyInput) (ReplyOutput, error) {
	if err := r.Ready(ctx); err != nil {
		return ReplyOutput{}, err
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ReplyOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > r.opts.MaxMessageLength {
		return ReplyOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	userID := strings.TrimSpace(in.UserID)

	history := in.History
	if len(history) == 0 && userID != "" && r.transcripts != nil {
		history = r.storedHistory(ctx, userID)
	}

	onTopic, err := r.checkTopic(ctx, message)
	if err != nil {
		return ReplyOutput{}, err
	}
	if !onTopic {
		reply := refusals[r.pick(len(refusals))]
		r.record(ctx, domain.Exchange{UserID: userID, Message: message, Reply: reply})
		return ReplyOutput{Reply: reply}, nil
	}

	reply, err := r.llm.Converse(ctx, domain.Conversation{
		Model:           r.opts.ChatModel,
		SystemPrompt:    buildPersonaPrompt(in.Profile),
		History:         buildHistory(history, message, r.opts.HistoryLimit),
		Message:         message,
		MaxOutputTokens: r.opts.MaxOutputTokens,
	})
	if err != nil {
		return ReplyOutput{}, upstreamError("chat", err)
	}
	if strings.TrimSpace(reply) == "" {
		return ReplyOutput{}, newError(ErrorUpstream, "empty_reply", nil)
	}

	r.record(ctx, domain.Exchange{UserID: userID, Message: message, Reply: reply, OnTopic: true})
	return ReplyOutput{Reply: reply, OnTopic: true}, nil
}

func (r *Relay) checkTopic(ctx context.Context, message string) (bool, error) {
	if r.verdicts != nil {
		onTopic, found, err := r.verdicts.Lookup(ctx, message)
		if err != nil {
			r.logger.Warn("verdict cache lookup failed", zap.Error(err))
		} else if found {
			r.logger.Debug("topic verdict from cache", zap.Bool("on_topic", onTopic))
			return onTopic, nil
		}
	}

	answer, err := r.llm.Generate(ctx, r.opts.ModerationModel, buildModerationPrompt(message))
	if err != nil {
		return false, upstreamError("moderation", err)
	}
	onTopic := isOnTopic(answer)
	r.logger.Info("topic verdict",
		zap.Bool("on_topic", onTopic),
		zap.Int("message_len", len(message)))

	if r.verdicts != nil {
		if err := r.verdicts.Store(ctx, message, onTopic); err != nil {
			r.logger.Warn("verdict cache store failed", zap.Error(err))
		}
	}
	return onTopic, nil
}

func (r *Relay) storedHistory(ctx context.Context, userID string) []domain.HistoryEntry {
	exchanges, err := r.transcripts.RecentExchanges(ctx, userID, (r.opts.HistoryLimit+1)/2)
	if err != nil {
		r.logger.Warn("loading stored history failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return historyFromExchanges(exchanges)
}

// record saves the exchange when a store is configured. The reply has already
// been produced, so failures are logged only.
func (r *Relay) record(ctx context.Context, ex domain.Exchange) {
	if r.transcripts == nil || ex.UserID == "" {
		return
	}
	ex.CreatedAt = r.now().UTC()
	if err := r.transcripts.SaveExchange(ctx, ex); err != nil {
		r.logger.Warn("saving exchange failed", zap.String("user_id", ex.UserID), zap.Error(err))
	}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
