// Package app wires the vocabloop subsystems into a running practice session.
//
// The App struct owns the full lifecycle: New builds the audio source, the
// three stages, the orchestrator and the display from the config, Run drives
// the session together with the display and the ops server, and Shutdown
// releases the devices and providers.
//
// For testing, inject test doubles via [Providers] and functional options
// (WithFs, WithView, WithMetrics). When an option is not provided, New uses
// the real implementation selected by the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocabloop/internal/config"
	"github.com/MrWong99/vocabloop/internal/display"
	"github.com/MrWong99/vocabloop/internal/health"
	"github.com/MrWong99/vocabloop/internal/listen"
	"github.com/MrWong99/vocabloop/internal/observe"
	"github.com/MrWong99/vocabloop/internal/practice"
	"github.com/MrWong99/vocabloop/internal/record"
	"github.com/MrWong99/vocabloop/internal/reply"
	"github.com/MrWong99/vocabloop/internal/resilience"
	"github.com/MrWong99/vocabloop/internal/speech"
	"github.com/MrWong99/vocabloop/internal/transcript"
	"github.com/MrWong99/vocabloop/internal/transcript/phonetic"
	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/provider/stt"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// Providers holds one interface value per provider slot. The fallbacks may be
// nil. Populated by main.go via the config registry.
type Providers struct {
	LLM         llm.Provider
	LLMFallback llm.Provider
	STT         stt.Provider
	TTS         tts.Provider
	TTSFallback tts.Provider
	Audio       *config.AudioBackend
}

// View receives both the session phase and the listening progress.
type View interface {
	practice.Display
	listen.Progress
}

// App owns all subsystem lifetimes of one practice session.
type App struct {
	cfg       *config.Config
	providers *Providers
	fs        afero.Fs
	metrics   *observe.Metrics
	sessionID string

	source *audio.Source
	view   View
	tui    *display.TUI
	orch   *practice.Orchestrator
	ops    *http.Server

	mu     sync.Mutex
	cancel context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFs sets the filesystem for the word list and turn recordings.
// Default: the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithView replaces the display selected by display.mode.
func WithView(v View) Option {
	return func(a *App) { a.view = v }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionID sets the session ID shared by logs, spans and metrics.
func WithSessionID(id string) Option {
	return func(a *App) { a.sessionID = id }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the instantiated providers. LLM, STT, TTS
// and Audio are required.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		fs:        afero.NewOsFs(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Audio.Shutdown)
	for _, p := range []any{providers.LLM, providers.LLMFallback, providers.STT, providers.TTS, providers.TTSFallback} {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// ── 1. Words ─────────────────────────────────────────────────────────
	words, err := practice.NewWordList(practice.ResolveWords(a.fs, cfg.Practice.WordsFile, cfg.Practice.Words), nil)
	if err != nil {
		return nil, fmt.Errorf("app: word list: %w", err)
	}

	// ── 2. Display ───────────────────────────────────────────────────────
	a.initView()

	// ── 3. Listening ─────────────────────────────────────────────────────
	listener, err := a.buildListener()
	if err != nil {
		return nil, fmt.Errorf("app: listener: %w", err)
	}

	// ── 4. Reply and speech ──────────────────────────────────────────────
	replier := reply.New(a.llmProvider(),
		reply.WithTemperature(cfg.Practice.Temperature),
		reply.WithMaxTokens(cfg.Practice.MaxTokens),
	)
	speaker := speech.New(a.ttsProvider(), providers.Audio.Playback, persona(cfg.Persona))

	// ── 5. Orchestrator ──────────────────────────────────────────────────
	a.orch = practice.New(listener, replier, speaker, words,
		practice.WithSessionID(a.sessionID),
		practice.WithDisplay(a.view),
		practice.WithRetryDelay(cfg.Practice.RetryDelay),
		practice.WithWorkers(cfg.Practice.Workers),
		practice.WithMetrics(a.metrics),
	)

	// ── 6. Ops server ────────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.ops = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	slog.Info("practice session ready",
		"session_id", a.orch.ID(),
		"words", words.Len(),
		"display", cfg.Display.Mode,
	)
	return a, nil
}

func (p *Providers) validate() error {
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if p.Audio == nil || p.Audio.Capture == nil || p.Audio.Playback == nil {
		errs = append(errs, errors.New("audio capture and playback are required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initView creates the display selected by display.mode unless one was
// injected.
func (a *App) initView() {
	if a.view != nil {
		return
	}
	if a.cfg.Display.Mode == config.DisplayLog {
		a.view = display.NewLog(slog.Default())
		return
	}
	a.tui = display.NewTUI(display.WithKeys(a.quit, a.retryNow))
	a.view = a.tui
}

// buildListener wires capture, recognition, phrase matching, correction and
// recording into a listen.Controller.
func (a *App) buildListener() (*listen.Controller, error) {
	ac := a.cfg.Audio
	ctx := context.Background()
	a.source = audio.NewSource(a.providers.Audio.Capture,
		audio.WithBlockSize(ac.BlockSize),
		audio.WithQueueFrames(ac.QueueFrames),
		audio.WithTargetFormat(audio.Format{SampleRate: ac.SampleRate, Channels: 1}),
		audio.WithDropHook(func() { a.metrics.RecordFrameDropped(ctx) }),
		audio.WithStatusHook(func(error) { a.metrics.RecordCaptureError(ctx) }),
	)

	opts := []listen.Option{
		listen.WithProgress(a.view),
		listen.WithPhraseMatcher(listen.NewPhraseMatcher(
			listen.WithFuzzyThreshold(a.cfg.Practice.FuzzyThreshold),
		)),
	}
	if a.cfg.Practice.CorrectWord {
		opts = append(opts, listen.WithCorrector(transcript.New(phonetic.New())))
	}
	if ac.RecordDir != "" {
		rec, err := record.New(a.fs, ac.RecordDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, listen.WithRecorder(rec))
		slog.Info("recording listening turns", "dir", ac.RecordDir)
	}

	recognizers := listen.ProviderRecognizers(a.sttProvider(), a.source.Format(), a.cfg.Practice.Language)
	return listen.NewController(a.source, recognizers, opts...), nil
}

// fallbackConfig reports every provider attempt and breaker trip to the
// metrics.
func (a *App) fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		Breaker: resilience.BreakerConfig{
			OnTrip: func(name string) {
				a.metrics.RecordBreakerTrip(context.Background(), name, kind)
			},
		},
		OnResult: func(name string, err error) {
			a.metrics.RecordProviderRequest(context.Background(), name, kind, observe.Status(err))
		},
	}
}

func (a *App) llmProvider() llm.Provider {
	pc := a.cfg.Providers
	f := resilience.NewLLMFallback(a.providers.LLM, pc.LLM.Name, a.fallbackConfig("llm"))
	if a.providers.LLMFallback != nil {
		f.AddFallback(pc.LLMFallback.Name, a.providers.LLMFallback)
	}
	return f
}

func (a *App) sttProvider() stt.Provider {
	return resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, a.fallbackConfig("stt"))
}

func (a *App) ttsProvider() tts.Provider {
	pc := a.cfg.Providers
	f := resilience.NewTTSFallback(a.providers.TTS, pc.TTS.Name, a.fallbackConfig("tts"))
	if a.providers.TTSFallback != nil {
		f.AddFallback(pc.TTSFallback.Name, a.providers.TTSFallback)
	}
	return f
}

// persona converts the persona config to the tutor voice, keeping the
// default delivery instructions when none are configured.
func persona(pc config.PersonaConfig) types.VoiceProfile {
	v := speech.DefaultPersona()
	if pc.Voice != "" {
		v.ID = pc.Voice
	}
	if pc.Instructions != "" {
		v.Instructions = pc.Instructions
	}
	return v
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// SessionID returns the ID of the practice session.
func (a *App) SessionID() string { return a.orch.ID() }

// Phase returns the current session phase.
func (a *App) Phase() practice.Phase { return a.orch.Phase() }

// Handler returns the ops endpoints: /metrics, /healthz and /readyz behind
// [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observe.MetricsHandler())
	health.New(
		health.SessionCheck(func() bool { return a.orch.Phase() == practice.PhaseClosed }),
		health.ProvidersCheck(map[string]string{
			"llm": a.cfg.Providers.LLM.Name,
			"stt": a.cfg.Providers.STT.Name,
			"tts": a.cfg.Providers.TTS.Name,
		}),
	).Register(mux)
	return observe.Middleware(a.metrics, "/metrics", "/healthz", "/readyz")(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the practice session and blocks until the learner says goodbye,
// quits from the display or ctx is cancelled.
//
// The orchestrator, the terminal display and the ops server run in one
// errgroup; when the session ends the others are stopped. Run returns nil
// after a goodbye and ctx.Err() (or [context.Canceled] after a quit key)
// otherwise.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.orch.Run(gctx)
	})

	if a.tui != nil {
		g.Go(func() error {
			defer cancel()
			return a.tui.Run(gctx)
		})
	}

	if a.ops != nil {
		g.Go(func() error {
			slog.Info("ops server listening", "addr", a.ops.Addr)
			if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return a.ops.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if a.tui != nil && a.tui.Dropped() > 0 {
		slog.Debug("display updates dropped", "count", a.tui.Dropped())
	}
	return err
}

// quit ends the session from the display.
func (a *App) quit() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// retryNow skips a pending retry delay.
func (a *App) retryNow() {
	if a.orch.RetryNow() {
		slog.Info("retrying now")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the capture source, the audio devices and any closable
// providers. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.source.Stop(); err != nil {
			slog.Warn("stop capture", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
