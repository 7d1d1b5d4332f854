package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/codereel/internal/api"
	"github.com/bobarin/codereel/internal/audio"
	"github.com/bobarin/codereel/internal/config"
	"github.com/bobarin/codereel/internal/db"
	"github.com/bobarin/codereel/internal/queue"
	"github.com/bobarin/codereel/internal/services"
	"github.com/bobarin/codereel/internal/signing"
	"github.com/bobarin/codereel/internal/storage"
	"github.com/bobarin/codereel/internal/worker"
)

func main() {
	log.Println("Starting CodeReel API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	q, err := queue.New(cfg.RedisURL, cfg.PrepQueue, cfg.RenderQueue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	signer := signing.New(cfg.AssetSigningKey)
	bundle := worker.NewBundler(stor, signer, cfg.PublicBaseURL, cfg.AssetURLTTL)

	handler := api.NewHandler(database, q, stor, signer, bundle, cfg.StreamPlaybackTemplate)
	router := api.NewRouter(handler, api.RouterConfig{
		CallbackToken:      cfg.CallbackToken,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		model, err := newCompleter(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize generation provider: %v", err)
		}
		log.Printf("Generation provider: %s", model.Name())

		synth := audio.New(newTTS(cfg),
			audio.WithConcurrency(cfg.AudioConcurrency),
			audio.WithTimeout(cfg.AudioTimeout),
			audio.WithVoiceStyle(cfg.TTSVoiceStyle),
		)

		var uploads worker.UploadTargets
		if cfg.StreamAccountID != "" {
			uploads = services.NewStreamService(cfg.StreamAccountID, cfg.StreamAPIToken, "")
			log.Println("Stream direct uploads enabled")
		} else {
			log.Println("WARNING: STREAM_ACCOUNT_ID not set; render messages carry no upload target")
		}

		w := worker.New(services.NewGeneration(model), database, stor, q, uploads, synth, bundle)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(ctx)
		go func() {
			w.Start(workerCtx, cfg.MaxConcurrentJobs)
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// In-flight jobs finish before the process exits.
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Println("WARNING: worker did not drain before shutdown deadline")
	}

	log.Println("Server exited")
}

func newCompleter(ctx context.Context, cfg *config.Config) (services.Completer, error) {
	if cfg.GenerationProvider == "gemini" {
		gemini, err := services.NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiModel, "")
		if err != nil {
			return nil, err
		}
		return gemini, nil
	}
	return services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel), nil
}

// newTTS returns nil when the selected provider has no key; every scene is
// then voiced with silence.
func newTTS(cfg *config.Config) services.TTSService {
	switch {
	case cfg.TTSProvider == "elevenlabs" && cfg.ElevenLabsKey != "":
		log.Printf("TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
		return services.NewElevenLabsService(cfg.ElevenLabsKey, "", cfg.ElevenLabsVoiceID)
	case cfg.TTSProvider == "cartesia" && cfg.CartesiaKey != "":
		log.Printf("TTS provider: Cartesia (voice: %s)", cfg.CartesiaVoiceID)
		return services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
	case cfg.TTSProvider == "openai" && cfg.OpenAIKey != "":
		log.Printf("TTS provider: OpenAI (voice: %s)", cfg.OpenAITTSVoice)
		return services.NewOpenAISpeech(cfg.OpenAIKey, cfg.OpenAITTSVoice)
	}
	log.Printf("WARNING: TTS provider %q has no credentials; all scenes will be silent", cfg.TTSProvider)
	return nil
}
