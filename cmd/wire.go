package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"findost/internal/cache"
	"findost/internal/config"
	"findost/internal/integrations/apikey"
	"findost/internal/integrations/gemini"
	"findost/internal/integrations/openai"
	"findost/internal/integrations/paramstore"
	"findost/internal/repository"
	"findost/internal/usecase"
)

// app holds the wired relay and whatever must be closed on shutdown.
type app struct {
	relay   *usecase.Relay
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// awsLoader loads the shared AWS config at most once, and only for the
// components that need it.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("failed to load AWS config: %w", l.err)
		}
	})
	return l.cfg, l.err
}

func buildApp(ctx context.Context, c *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	loader := &awsLoader{}

	keys, err := buildKeySource(ctx, c, loader, log)
	if err != nil {
		return nil, err
	}
	llm, err := buildLLM(c, keys)
	if err != nil {
		return nil, err
	}

	opts := []usecase.Option{usecase.WithLogger(log)}

	store, closeStore, err := buildTranscripts(ctx, c, loader)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, usecase.WithTranscripts(store))
		log.Info("transcripts enabled", zap.String("backend", c.Transcripts.Backend))
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	if c.Cache.RedisURL != "" {
		client, err := cache.Dial(ctx, c.Cache.RedisURL)
		if err != nil {
			// The cache only saves moderation calls; run without it.
			log.Warn("verdict cache disabled", zap.Error(err))
		} else {
			verdicts, err := cache.NewVerdicts(client, c.GetCacheTTL())
			if err != nil {
				_ = client.Close()
				_ = a.Close()
				return nil, err
			}
			opts = append(opts, usecase.WithVerdictCache(verdicts))
			a.closers = append(a.closers, client.Close)
		}
	}

	relay, err := usecase.NewRelay(llm, usecase.Options{
		ChatModel:        c.ModelName(),
		ModerationModel:  c.LLM.ModerationModel,
		MaxOutputTokens:  c.Relay.MaxOutputTokens,
		HistoryLimit:     c.Relay.HistoryLimit,
		MaxMessageLength: c.Relay.MaxMessageLength,
	}, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create relay: %w", err)
	}
	a.relay = relay

	log.Info("relay ready",
		zap.String("provider", c.LLM.Provider),
		zap.String("model", c.ModelName()))
	return a, nil
}

// buildKeySource prefers an explicit key, then an SSM parameter. With
// neither, the server still starts and /chat reports the missing key.
func buildKeySource(ctx context.Context, c *config.Config, loader *awsLoader, log *zap.Logger) (apikey.Source, error) {
	if c.LLM.APIKey != "" {
		log.Info("loaded API key", zap.String("key", maskKey(c.LLM.APIKey)))
		return apikey.Static(c.LLM.APIKey), nil
	}
	if c.LLM.APIKeyParam == "" {
		log.Warn("no API key configured; /chat will fail until one is set",
			zap.String("provider", c.LLM.Provider))
		return apikey.Static(""), nil
	}

	awsCfg, err := loader.load(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create SSM client: %w", err)
	}
	log.Info("API key will be read from SSM", zap.String("parameter", c.LLM.APIKeyParam))
	return apikey.FromParamStore(ps, c.LLM.APIKeyParam)
}

func buildLLM(c *config.Config, keys apikey.Source) (usecase.LLMClient, error) {
	httpClient := &http.Client{Timeout: c.GetLLMTimeout()}
	switch c.LLM.Provider {
	case config.ProviderGemini:
		return gemini.NewClient(keys, gemini.WithHTTPClient(httpClient))
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithHTTPClient(httpClient)}
		if c.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.LLM.BaseURL))
		}
		return openai.NewClient(keys, opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
}

func buildTranscripts(ctx context.Context, c *config.Config, loader *awsLoader) (usecase.TranscriptStore, func() error, error) {
	switch c.Transcripts.Backend {
	case config.BackendDynamoDB:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), c.Transcripts.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create transcript store: %w", err)
		}
		return store, nil, nil
	case config.BackendPostgres:
		db, err := repository.OpenPostgres(ctx, c.Transcripts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewPostgresStore(db, c.Transcripts.Table)
		if err == nil {
			err = store.EnsureSchema(ctx)
		}
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to prepare transcript store: %w", err)
		}
		return store, db.Close, nil
	default:
		return nil, nil, nil
	}
}

// maskKey keeps just enough of a key to tell deployments apart in logs.
func maskKey(key string) string {
	if len(key) <= 10 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
