package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// DefaultWindowSize is the audio window length the model expects:
// one second at 16 kHz.
const DefaultWindowSize = 16000

// ClientConfig holds configuration for creating an embedding client.
type ClientConfig struct {
	// The path to the ONNX embedding model file to load.
	ModelPath string
	// The sampling rate of the input audio samples. Only 16000 is supported.
	SampleRate int
	// WindowSize is the required input length in samples. Shorter input is
	// zero-padded on the right, longer input is truncated. Defaults to
	// DefaultWindowSize.
	WindowSize int
}

// IsValid validates the client configuration.
func (c ClientConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}

	if c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: the embedding model requires 16000")
	}

	if c.WindowSize < 0 {
		return fmt.Errorf("invalid WindowSize: must not be negative")
	}

	return nil
}

// Client runs the embedding model. It is safe for use by one goroutine at
// a time; the coordinator's admission control guarantees that.
type Client struct {
	session *ort.DynamicAdvancedSession

	cfg ClientConfig

	// Input/output names discovered from the model file. Model exports
	// vary, so the names are never hardcoded.
	inputName  string
	outputName string

	mu sync.Mutex
}

// NewClient loads the model and creates an inference session.
// InitRuntime must be called before creating a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	// Ensure runtime is initialized
	runtimeMu.Lock()
	if !runtimeInitialized {
		runtimeMu.Unlock()
		// Auto-initialize runtime
		if err := InitRuntime(""); err != nil {
			return nil, fmt.Errorf("ONNX runtime not initialized: %w", err)
		}
	} else {
		runtimeMu.Unlock()
	}

	// Discover the model's input and output names instead of assuming them.
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model exposes no inputs or outputs")
	}

	c := &Client{
		cfg:        cfg,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}

	// Create session options
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("failed to set graph optimization level: %w", err)
	}

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	// Create dynamic session (the sequence axis is variable in the export)
	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{c.inputName},
		[]string{c.outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.session = session
	return c, nil
}

// WindowSize returns the required input length in samples.
func (c *Client) WindowSize() int {
	return c.cfg.WindowSize
}

// Infer runs the embedding model on an audio window and returns the
// per-frame embedding tensor. samples should be normalized float32 values
// in the range [-1, 1]; they are padded or truncated to the required
// window length. Inference may take tens to hundreds of milliseconds.
//
// ctx is checked before the call; ONNX runtime inference itself is not
// interruptible, so callers enforce deadlines by discarding late results.
func (c *Client) Infer(ctx context.Context, samples []float32) (*Tensor, error) {
	if c == nil {
		return nil, fmt.Errorf("invalid nil client")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	window := PrepareWindow(samples, c.cfg.WindowSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, fmt.Errorf("client is destroyed")
	}

	inputShape := ort.NewShape(1, int64(len(window)))
	inputTensor, err := ort.NewTensor(inputShape, window)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Let the runtime allocate the output; the frame count is model-defined.
	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer outputTensor.Destroy()

	shape := outputTensor.GetShape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v, want [1, frames, channels]", shape)
	}

	t, err := NewTensor(int(shape[1]), int(shape[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid output shape %v: %w", shape, err)
	}
	copy(t.Data, outputTensor.GetData())

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("model produced invalid output: %w", err)
	}

	return t, nil
}

// Destroy releases all resources held by the client.
// The client should not be used after calling Destroy.
func (c *Client) Destroy() error {
	if c == nil {
		return fmt.Errorf("invalid nil client")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		c.session = nil
	}

	return nil
}
