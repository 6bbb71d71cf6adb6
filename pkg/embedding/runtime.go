// Package embedding wraps the pre-trained acoustic embedding model (WavLM
// Base exported to ONNX) behind a narrow client: a fixed-length audio
// window in, a [frames x channels] tensor of per-frame embeddings out.
//
// This package uses onnxruntime_go for ONNX model inference.
//
// Usage:
//
//	// Initialize the ONNX runtime (call once at startup)
//	if err := embedding.InitRuntime(""); err != nil {
//	    log.Fatal(err)
//	}
//	defer embedding.DestroyRuntime()
//
//	client, err := embedding.NewClient(embedding.ClientConfig{
//	    ModelPath:  "path/to/wavlm_base.onnx",
//	    SampleRate: 16000,
//	})
package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// runtimeInitialized tracks whether the ONNX runtime has been initialized.
var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment.
// libraryPath can be empty to use auto-detection, or specify the path to libonnxruntime.so.
// This should be called once at application startup before creating any clients.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	} else {
		// Try to find the library in common locations
		libPath := findONNXRuntimeLibrary()
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// DestroyRuntime destroys the ONNX runtime environment.
// This should be called once at application shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}

	runtimeInitialized = false
	return nil
}

// findONNXRuntimeLibrary tries to find the ONNX Runtime shared library.
func findONNXRuntimeLibrary() string {
	// Common paths to check
	paths := []string{
		// Environment variable
		os.Getenv("ONNXRUNTIME_LIB"),
		// Linux system paths
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		// macOS Homebrew paths
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}

	// Also check LD_LIBRARY_PATH
	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}

	// Check DYLD_LIBRARY_PATH for macOS
	if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
		for _, dir := range filepath.SplitList(dyldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.dylib"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
