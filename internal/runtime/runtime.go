// Package runtime assembles the daemon: telemetry, the optional NATS bus,
// the conversation store, object storage, the synthesis gate, the LLM
// client, and the HTTP surface that carries the chat WebSocket.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxalabs/voxa-core/internal/bus"
	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/convstore"
	"github.com/voxalabs/voxa-core/internal/llm"
	"github.com/voxalabs/voxa-core/internal/natsserver"
	"github.com/voxalabs/voxa-core/internal/storage"
	"github.com/voxalabs/voxa-core/internal/stream"
	"github.com/voxalabs/voxa-core/internal/synth"
	"github.com/voxalabs/voxa-core/internal/transport"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	natsServer  *natsserver.EmbeddedServer
	busClient   *bus.Client
	store       *convstore.Store
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every service up, serves until ctx is cancelled, then shuts
// down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Enabled {
		ns, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		r.natsServer = ns

		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", busCfg.Port)}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			r.natsServer.Shutdown()
			return fmt.Errorf("connect to bus: %w", err)
		}
		r.busClient = client
	}

	store, err := convstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	r.store = store

	backend, gate, err := r.buildSynthesizer()
	if err != nil {
		return fmt.Errorf("build synthesizer: %w", err)
	}
	r.registerGateGauge(gate)

	generator, err := r.buildGenerator()
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}

	var sink stream.EventSink
	if r.busClient != nil {
		sink = r.busClient
	}
	orc := stream.NewOrchestrator(backend, stream.OptionsFromConfig(r.cfg.Pipeline), sink, r.store, r.logger)

	chat := transport.NewHandler(orc, generator, r.buildAvatars(), r.store, transport.Options{
		HistoryLimit: r.cfg.LLM.HistoryLimit,
		MaxTokens:    r.cfg.LLM.MaxTokens,
		Temperature:  r.cfg.LLM.Temperature,
	}, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.Handle("/ws/chat", chat)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("llm", r.cfg.LLM.Mode),
		slog.String("tts", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.busClient.Close()
	r.natsServer.Shutdown()
	if err := r.store.Close(); err != nil {
		r.logger.Error("conversation store close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildSynthesizer assembles the synthesis chain: backend, then the
// process-wide gate, then (optionally) the storage upload adapter. The
// upload adapter wraps the gate so network time never holds the device.
func (r *Runtime) buildSynthesizer() (synth.Synthesizer, *synth.Gate, error) {
	var backend synth.Synthesizer
	var err error
	switch r.cfg.TTS.Mode {
	case "exec":
		backend, err = synth.NewExecSynth(r.cfg.TTS.Command)
		if err != nil {
			return nil, nil, err
		}
	default:
		backend = synth.NewMockSynth(10 * time.Millisecond)
	}

	clearer, _ := backend.(synth.CacheClearer)
	gate := synth.NewGate(backend, clearer, r.logger)

	var chain synth.Synthesizer = gate
	if r.cfg.TTS.UploadAudio {
		uploader, err := r.buildUploader()
		if err != nil {
			return nil, nil, err
		}
		chain = synth.NewUploadSynth(chain, uploader)
	}
	return chain, gate, nil
}

func (r *Runtime) registerGateGauge(gate *synth.Gate) {
	meter := otel.Meter("github.com/voxalabs/voxa-core/runtime")
	gauge, err := meter.Int64ObservableGauge("voxa.synth.gate_depth",
		metric.WithDescription("Synthesis calls currently inside the backend"))
	if err != nil {
		r.logger.Warn("failed to initialize gate metrics", slog.String("error", err.Error()))
		return
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(gate.InFlight()))
		return nil
	}, gauge); err != nil {
		r.logger.Warn("failed to register gate metrics callback", slog.String("error", err.Error()))
	}
}

func (r *Runtime) buildUploader() (storage.Uploader, error) {
	switch r.cfg.Storage.Mode {
	case "s3":
		client := storage.NewS3Client(r.cfg.Storage.Endpoint, r.cfg.Storage.Region, r.cfg.Storage.AccessKey, r.cfg.Storage.SecretKey)
		return storage.NewS3Store(client, storage.S3Options{
			Bucket:        r.cfg.Storage.Bucket,
			Prefix:        r.cfg.Storage.Prefix,
			PublicBaseURL: r.cfg.Storage.PublicBaseURL,
		}, r.logger)
	default:
		return storage.NewLocalStore(r.cfg.Storage.Dir, r.cfg.Storage.PublicBaseURL, r.logger)
	}
}

func (r *Runtime) buildGenerator() (llm.Generator, error) {
	switch r.cfg.LLM.Mode {
	case "ollama":
		return llm.NewOllamaGenerator(r.cfg.LLM.Endpoint, r.cfg.LLM.Model), nil
	case "openai":
		return llm.NewOpenAIGenerator(r.cfg.LLM.APIKey, r.cfg.LLM.Endpoint, r.cfg.LLM.Model), nil
	default:
		return llm.NewMockGenerator("Hello! This is the mock language model speaking."), nil
	}
}

func (r *Runtime) buildAvatars() stream.AvatarDirectory {
	toAvatar := func(a config.AvatarConfig) stream.Avatar {
		voiceRef := a.VoiceRef
		if voiceRef == "" {
			voiceRef = r.cfg.TTS.Voice
		}
		language := a.Language
		if language == "" {
			language = r.cfg.TTS.Language
		}
		return stream.Avatar{
			ID:             a.ID,
			Name:           a.Name,
			RoleTitle:      a.RoleTitle,
			Description:    a.Description,
			VoiceRef:       voiceRef,
			Language:       language,
			PromptTemplate: a.PromptTemplate,
		}
	}
	extras := make([]stream.Avatar, 0, len(r.cfg.Avatars))
	for _, a := range r.cfg.Avatars {
		extras = append(extras, toAvatar(a))
	}
	return stream.NewStaticDirectory(toAvatar(r.cfg.Avatar), extras...)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
