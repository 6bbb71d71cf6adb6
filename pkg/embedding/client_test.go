package embedding

import (
	"context"
	"os"
	"testing"
	"time"
)

// getModelPath returns the embedding model path, or "" if the artifact is
// not available in this environment.
func getModelPath() string {
	path := os.Getenv("EMBEDDING_MODEL_PATH")
	if path == "" {
		path = "../../models/wavlm_base.onnx"
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func TestClientInference(t *testing.T) {
	modelPath := getModelPath()
	if modelPath == "" {
		t.Skip("embedding model not available, set EMBEDDING_MODEL_PATH to run")
	}
	if err := InitRuntime(""); err != nil {
		t.Skipf("ONNX runtime not available: %v", err)
	}
	defer DestroyRuntime()

	client, err := NewClient(ClientConfig{
		ModelPath:  modelPath,
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// One second of silence still yields a full, finite tensor.
	tensor, err := client.Infer(ctx, make([]float32, 16000))
	if err != nil {
		t.Fatal(err)
	}

	if tensor.Frames <= 0 {
		t.Errorf("Expected at least one frame, got %d", tensor.Frames)
	}
	if tensor.Channels != 768 {
		t.Errorf("Expected 768 channels, got %d", tensor.Channels)
	}
	if err := tensor.Validate(); err != nil {
		t.Errorf("Output failed validation: %v", err)
	}

	// Short input is padded to the window, not rejected.
	if _, err := client.Infer(ctx, make([]float32, 1000)); err != nil {
		t.Errorf("Short input inference failed: %v", err)
	}
}

func TestClientCancelledContext(t *testing.T) {
	modelPath := getModelPath()
	if modelPath == "" {
		t.Skip("embedding model not available, set EMBEDDING_MODEL_PATH to run")
	}
	if err := InitRuntime(""); err != nil {
		t.Skipf("ONNX runtime not available: %v", err)
	}
	defer DestroyRuntime()

	client, err := NewClient(ClientConfig{ModelPath: modelPath, SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Infer(ctx, make([]float32, 16000)); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
