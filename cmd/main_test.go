package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"findost/internal/config"
	"findost/internal/integrations/apikey"
	"findost/internal/integrations/gemini"
	"findost/internal/integrations/openai"
)

func TestMaskKey(t *testing.T) {
	require.Equal(t, "AIzaSy...wxyz", maskKey("AIzaSyABCDEFGHwxyz"))
	require.Equal(t, "***", maskKey("short"))
}

func TestNewLogger_Levels(t *testing.T) {
	c := config.DefaultConfig()
	c.Logging.Level = "warn"

	l, err := newLogger(c, false)
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger(c, true)
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestBuildLLM_SelectsProvider(t *testing.T) {
	c := config.DefaultConfig()
	llm, err := buildLLM(c, apikey.Static("k"))
	require.NoError(t, err)
	require.IsType(t, &gemini.Client{}, llm)

	c.LLM.Provider = config.ProviderOpenAI
	c.LLM.BaseURL = "http://gateway:8080"
	llm, err = buildLLM(c, apikey.Static("k"))
	require.NoError(t, err)
	require.IsType(t, &openai.Client{}, llm)

	c.LLM.Provider = "anthropic"
	_, err = buildLLM(c, apikey.Static("k"))
	require.Error(t, err)
}

func TestBuildKeySource_StaticAndMissing(t *testing.T) {
	c := config.DefaultConfig()
	c.LLM.APIKey = "AIza-static-key"
	keys, err := buildKeySource(context.Background(), c, &awsLoader{}, zap.NewNop())
	require.NoError(t, err)
	key, err := keys.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AIza-static-key", key)

	c.LLM.APIKey = ""
	keys, err = buildKeySource(context.Background(), c, &awsLoader{}, zap.NewNop())
	require.NoError(t, err)
	_, err = keys.APIKey(context.Background())
	require.ErrorIs(t, err, apikey.ErrMissing)
}

func TestBuildApp_Defaults(t *testing.T) {
	c := config.DefaultConfig()
	a, err := buildApp(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.relay)
	require.Empty(t, a.closers)
	// No key configured: the relay starts but reports itself unconfigured.
	require.Error(t, a.relay.Ready(context.Background()))
}

func TestBuildTranscripts_None(t *testing.T) {
	store, closer, err := buildTranscripts(context.Background(), config.DefaultConfig(), &awsLoader{})
	require.NoError(t, err)
	require.Nil(t, store)
	require.Nil(t, closer)
}

func TestReadProfile(t *testing.T) {
	p, err := readProfile("")
	require.NoError(t, err)
	require.Empty(t, p.FullName)

	path := filepath.Join(t.TempDir(), "me.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"full_name":"Asha","monthly_salary_inr":"45000"}`), 0o644))
	p, err = readProfile(path)
	require.NoError(t, err)
	require.Equal(t, "Asha", p.FullName)
	require.Equal(t, "45000", p.MonthlySalaryINR.String())

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = readProfile(path)
	require.ErrorContains(t, err, "parse profile")
}

func TestServeUntilDone_ShutsDownOnCancel(t *testing.T) {
	logger = zap.NewNop()
	srv := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestAskCmd_RequiresMessage(t *testing.T) {
	require.Error(t, askCmd.Args(askCmd, nil))
	require.NoError(t, askCmd.Args(askCmd, []string{"hello"}))
}
