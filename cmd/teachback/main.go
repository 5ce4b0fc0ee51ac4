package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oratio/teachback/internal/admin"
	"github.com/oratio/teachback/internal/config"
	"github.com/oratio/teachback/internal/gateway"
	"github.com/oratio/teachback/internal/identity"
	"github.com/oratio/teachback/internal/modelrouter"
	"github.com/oratio/teachback/internal/quota"
	"github.com/oratio/teachback/internal/roles"
	"github.com/oratio/teachback/internal/session"
	"github.com/oratio/teachback/internal/transcript"
	"github.com/oratio/teachback/internal/voice"
	"github.com/oratio/teachback/providers/llm/anthropic"
	"github.com/oratio/teachback/providers/llm/openai"
	"github.com/oratio/teachback/providers/stt/deepgram"
	googletts "github.com/oratio/teachback/providers/tts/google"
	"github.com/oratio/teachback/providers/tts/polly"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
			os.Exit(1)
		}
	case "check-providers":
		if err := runCheckProviders(); err != nil {
			fmt.Fprintf(os.Stderr, "provider check failed: %v\n", err)
			os.Exit(1)
		}
	case "sweep":
		if err := runSweep(); err != nil {
			fmt.Fprintf(os.Stderr, "retention sweep failed: %v\n", err)
			os.Exit(1)
		}
	case "mint-token":
		if err := runMintToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "mint-token failed: %v\n", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println("teachback usage:")
	fmt.Println("  teachback serve             run the session and admin HTTP surfaces")
	fmt.Println("  teachback check-providers   probe both model endpoints")
	fmt.Println("  teachback sweep             prune expired completed-session transcripts")
	fmt.Println("  teachback mint-token <user> <plan>")
}

func buildRouter(cfg config.Config) (*modelrouter.Router, error) {
	primary, err := anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	if err != nil {
		return nil, fmt.Errorf("anthropic handle: %w", err)
	}
	fallback, err := openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
	if err != nil {
		return nil, fmt.Errorf("openai handle: %w", err)
	}
	return modelrouter.New(primary, fallback, modelrouter.NewHealth(), modelrouter.Config{
		PrimaryThreshold:  cfg.PrimaryFailureThreshold,
		FallbackThreshold: cfg.FallbackFailureThreshold,
		CallTimeout:       cfg.ModelCallTimeout,
	})
}

func buildVoice(cfg config.Config) (*voice.Pipeline, error) {
	var transcriber voice.Transcriber
	if cfg.DeepgramAPIKey != "" {
		stt, err := deepgram.New(deepgram.Config{APIKey: cfg.DeepgramAPIKey, Timeout: cfg.VoiceCallTimeout})
		if err != nil {
			return nil, fmt.Errorf("deepgram adapter: %w", err)
		}
		transcriber = stt
	}

	var synthesizer voice.Synthesizer
	if cfg.PollyRegion != "" {
		synthesizer = &failoverSynthesizer{
			primary:   polly.NewAdapter(polly.Config{Region: cfg.PollyRegion, VoiceID: cfg.PollyVoice}),
			secondary: googletts.NewAdapter(googletts.Config{LanguageCode: cfg.GoogleTTSLang}),
		}
	} else {
		synthesizer = googletts.NewAdapter(googletts.Config{LanguageCode: cfg.GoogleTTSLang})
	}

	health := voice.NewSubsystemHealth(cfg.VoiceFailStreak)
	return voice.NewPipeline(transcriber, synthesizer, health, voice.Config{
		ConfidenceFloor: cfg.ConfidenceFloor,
		STTTimeout:      cfg.VoiceCallTimeout,
		TTSTimeout:      cfg.VoiceCallTimeout,
	}), nil
}

func buildStore(cfg config.Config) (transcript.Store, error) {
	if cfg.SQLitePath == "" || cfg.SQLitePath == "memory" {
		return transcript.NewMemoryStore(), nil
	}
	return transcript.OpenSQLite(cfg.SQLitePath)
}

func buildGuard(cfg config.Config) (*quota.Guard, error) {
	var store quota.Store
	if cfg.RedisURL != "" {
		rs, err := quota.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis quota store: %w", err)
		}
		store = rs
	} else {
		store = quota.NewMemoryStore()
	}
	return quota.NewGuard(store, quota.Config{
		Plans: map[string]quota.Limit{
			"basic":   {Units: cfg.DefaultQuotaUnits, Window: cfg.QuotaWindow},
			"premium": {Units: cfg.DefaultQuotaUnits * 4, Window: cfg.QuotaWindow},
		},
		DefaultPlan:     quota.Limit{Units: cfg.DefaultQuotaUnits, Window: cfg.QuotaWindow},
		VoiceMultiplier: cfg.VoiceQuotaMultiplier,
	}), nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	pipeline, err := buildVoice(cfg)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	guard, err := buildGuard(cfg)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("TEACHBACK_JWT_SECRET is required for serve")
	}

	flags := config.NewFlags(cfg.FeatureEnabled, cfg.VoiceEnabled)
	controller := session.NewController(
		store,
		roles.NewOrchestrator(router),
		pipeline,
		guard,
		router.Health(),
		flags,
		session.Config{ExamQuestionCap: cfg.ExamQuestionCap},
	)

	api := newAPIServer(
		controller,
		gateway.New(store),
		identity.NewVerifier([]byte(cfg.JWTSecret), "teachback"),
	)
	adminSrv := admin.NewServer(flags, guard, router, admin.Config{Token: os.Getenv("TEACHBACK_ADMIN_TOKEN")})

	mux := http.NewServeMux()
	mux.Handle("/v1/", api.Handler())
	mux.Handle("/", adminSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("teachback listening on %s\n", cfg.AdminAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runCheckProviders() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ModelCallTimeout)
	defer cancel()

	healthy := router.Probe(ctx)
	snapshot := router.Health().Snapshot()
	fmt.Printf("primary failures: %d\n", snapshot.PrimaryFailures)
	fmt.Printf("fallback failures: %d\n", snapshot.FallbackFailures)
	fmt.Printf("maintenance: %v\n", snapshot.Maintenance)
	if !healthy {
		return fmt.Errorf("no model endpoint answered the probe")
	}
	fmt.Println("providers ok")
	return nil
}

func runSweep() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pruned, err := transcript.NewSweeper(store, cfg.RetentionMaxAge).Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d completed sessions\n", pruned)
	return nil
}

func runMintToken(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: teachback mint-token <user> <plan>")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("TEACHBACK_JWT_SECRET is required")
	}
	token, err := identity.Issue([]byte(cfg.JWTSecret), "teachback", args[0], args[1], 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// failoverSynthesizer tries Polly first and falls back to Google TTS.
type failoverSynthesizer struct {
	primary   voice.Synthesizer
	secondary voice.Synthesizer
}

func (f *failoverSynthesizer) Name() string { return "tts-failover" }

func (f *failoverSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := f.primary.Synthesize(ctx, text)
	if err == nil {
		return audio, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.secondary.Synthesize(ctx, text)
}
