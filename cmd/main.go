package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tractstream/tractstream/pkg/capture"
	"github.com/tractstream/tractstream/pkg/embedding"
	"github.com/tractstream/tractstream/pkg/extractor"
	"github.com/tractstream/tractstream/pkg/pipeline"
	"github.com/tractstream/tractstream/pkg/projection"
	"github.com/tractstream/tractstream/pkg/server"
	"github.com/tractstream/tractstream/pkg/trace"
)

// control ties the capture device and the extraction pipeline together so
// a single start/stop command from the UI drives both.
type control struct {
	pipeline *pipeline.Pipeline
	coord    *extractor.Coordinator
	source   *capture.Source
	mu       sync.Mutex
}

func (c *control) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.source.Start(ctx); err != nil {
		return err
	}
	if err := c.pipeline.Start(ctx); err != nil {
		c.source.Stop()
		return err
	}
	return nil
}

func (c *control) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pipeline.Stop(); err != nil {
		return err
	}
	return c.source.Stop()
}

func (c *control) State() extractor.State {
	return c.coord.State()
}

func (c *control) SetCalibration(cal projection.Calibration) {
	c.coord.SetCalibration(cal)
}

func main() {
	godotenv.Load()

	ctx := context.Background()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer trace.Shutdown(ctx)

	if err := embedding.InitRuntime(os.Getenv("ONNXRUNTIME_LIB")); err != nil {
		log.Fatalf("failed to initialize ONNX runtime: %v", err)
	}
	defer embedding.DestroyRuntime()

	client, err := embedding.NewClient(embedding.ClientConfig{
		ModelPath:  getEnv("EMBEDDING_MODEL_PATH", "models/wavlm_base.onnx"),
		SampleRate: 16000,
	})
	if err != nil {
		log.Fatalf("failed to load embedding model: %v", err)
	}
	defer client.Destroy()

	model, err := projection.LoadLinearModel(getEnv("LINEAR_MODEL_PATH", "models/wavlm_linear_model.json"))
	if err != nil {
		log.Fatalf("failed to load linear model: %v", err)
	}

	coord, err := extractor.NewCoordinator(extractor.DefaultConfig(), client, model)
	if err != nil {
		log.Fatalf("failed to create coordinator: %v", err)
	}

	p := pipeline.NewPipeline("tractstream")
	p.AddElement(coord)

	source, err := capture.NewSource(capture.DefaultConfig(), coord.NotifySourceError)
	if err != nil {
		log.Fatalf("failed to initialize audio capture: %v", err)
	}
	defer source.Close()

	// Forward captured chunks into the pipeline for the whole process
	// lifetime; the coordinator only consumes them while running.
	go func() {
		for msg := range source.Out() {
			p.Push(msg)
		}
	}()

	ctrl := &control{pipeline: p, coord: coord, source: source}

	cfg := server.DefaultStreamConfig()
	cfg.Addr = getEnv("ADDR", ":8080")
	cfg.StaticDir = getEnv("STATIC_DIR", "web")

	srv := server.NewStreamServer(cfg, ctrl, coord.Out(), p.Bus())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	if err := srv.Stop(); err != nil {
		log.Printf("server stop: %v", err)
	}
	if err := ctrl.Stop(); err != nil {
		log.Printf("pipeline stop: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
