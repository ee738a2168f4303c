// Package setup installs and detects the local sleep analyzer's
// dependencies: llama.cpp shared libraries and a GGUF embedding model.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hybridgroup/yzma/pkg/download"

	"github.com/nvandessel/sleepsync/internal/pathutil"
)

// DefaultModelURL is the embedding model the local analyzer is tuned for.
const DefaultModelURL = "https://huggingface.co/nomic-ai/nomic-embed-text-v1.5-GGUF/resolve/main/nomic-embed-text-v1.5.Q4_K_M.gguf"

// LocalModel describes the detected state of the local analyzer's files.
type LocalModel struct {
	LibPath   string `json:"lib_path"`   // llama.cpp libs directory (empty if not found)
	ModelPath string `json:"model_path"` // GGUF model file (empty if not found)
	Available bool   `json:"available"`  // both lib and model found
}

// ConfigValues returns the config keys that point the analyzer at m.
func (m LocalModel) ConfigValues() map[string]string {
	return map[string]string{
		"feedback.provider":         "local",
		"feedback.local_lib_path":   m.LibPath,
		"feedback.local_model_path": m.ModelPath,
	}
}

// LibDir and ModelsDir are the install locations under the data directory.
func LibDir(baseDir string) string    { return filepath.Join(baseDir, "lib") }
func ModelsDir(baseDir string) string { return filepath.Join(baseDir, "models") }

// DetectInstalled checks baseDir/lib for llama.cpp and baseDir/models for
// the first .gguf file.
func DetectInstalled(baseDir string) LocalModel {
	var result LocalModel

	libDir := LibDir(baseDir)
	if _, err := os.Stat(filepath.Join(libDir, libraryFileName())); err == nil {
		result.LibPath = libDir
	}

	modelsDir := ModelsDir(baseDir)
	if entries, err := os.ReadDir(modelsDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".gguf" {
				result.ModelPath = filepath.Join(modelsDir, entry.Name())
				break
			}
		}
	}

	result.Available = result.LibPath != "" && result.ModelPath != ""
	return result
}

func libraryFileName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libllama.dylib"
	case "windows":
		return "llama.dll"
	default:
		return "libllama.so"
	}
}

// Downloader fetches the local analyzer's files.
type Downloader interface {
	Libraries(ctx context.Context, destDir string) error
	Model(ctx context.Context, url, destDir string) error
}

// YzmaDownloader downloads llama.cpp release builds and HuggingFace models.
type YzmaDownloader struct {
	// Processor selects the llama.cpp build: "cpu" (default), "cuda", "vulkan" or "metal".
	Processor string
}

// Libraries downloads the latest llama.cpp shared libraries for this platform.
func (d YzmaDownloader) Libraries(ctx context.Context, destDir string) error {
	version, err := download.LlamaLatestVersion()
	if err != nil {
		return fmt.Errorf("getting latest llama.cpp version: %w", err)
	}
	processor := d.Processor
	if processor == "" {
		processor = "cpu"
	}
	return download.GetWithContext(ctx, runtime.GOARCH, runtime.GOOS, processor, version, destDir, download.ProgressTracker)
}

// Model downloads a GGUF model.
func (d YzmaDownloader) Model(ctx context.Context, url, destDir string) error {
	return download.GetModelWithContext(ctx, url, destDir, download.ProgressTracker)
}

// InstallOptions configures Install.
type InstallOptions struct {
	ModelURL string // defaults to DefaultModelURL
	Force    bool   // download even when already present
}

// Install downloads whatever is missing under baseDir and returns the
// resulting state.
func Install(ctx context.Context, baseDir string, d Downloader, opts InstallOptions) (LocalModel, error) {
	if opts.ModelURL == "" {
		opts.ModelURL = DefaultModelURL
	}
	current := DetectInstalled(baseDir)

	if current.LibPath == "" || opts.Force {
		dir := LibDir(baseDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return current, fmt.Errorf("creating lib directory: %w", err)
		}
		if err := d.Libraries(ctx, dir); err != nil {
			return current, fmt.Errorf("downloading llama.cpp libraries: %w", err)
		}
	}

	if current.ModelPath == "" || opts.Force {
		dir := ModelsDir(baseDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return current, fmt.Errorf("creating models directory: %w", err)
		}
		if err := d.Model(ctx, opts.ModelURL, dir); err != nil {
			return current, fmt.Errorf("downloading model: %w", err)
		}
	}

	result := DetectInstalled(baseDir)
	if !result.Available {
		return result, fmt.Errorf("download finished but files not found under %s", pathutil.RedactPath(baseDir))
	}
	if err := checkModelPath(result.ModelPath, ModelsDir(baseDir)); err != nil {
		return LocalModel{}, err
	}
	return result, nil
}

// checkModelPath rejects a model file that resolves outside modelsDir.
func checkModelPath(path, modelsDir string) error {
	if _, err := pathutil.Contained(path, modelsDir); err != nil {
		return fmt.Errorf("refusing model outside %s: %w", pathutil.RedactPath(modelsDir), err)
	}
	return nil
}
