//go:build llamacpp

package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalClient_Available(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "lib")
	if err := os.Mkdir(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	libFile := filepath.Join(dir, "libllama.so")
	model := filepath.Join(dir, "sleep.gguf")
	for _, f := range []string{libFile, model} {
		if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		envLib string
		cfg    LocalConfig
		want   bool
	}{
		{"nothing configured", "", LocalConfig{}, false},
		{"lib path is a file", "", LocalConfig{LibPath: libFile, ModelPath: model}, false},
		{"model missing", "", LocalConfig{LibPath: libDir, ModelPath: filepath.Join(dir, "gone.gguf")}, false},
		{"configured", "", LocalConfig{LibPath: libDir, ModelPath: model}, true},
		{"lib from YZMA_LIB", libDir, LocalConfig{ModelPath: model}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("YZMA_LIB", tt.envLib)
			if got := NewLocalClient(tt.cfg).Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalClient_ScoreSleepWithoutModel(t *testing.T) {
	t.Setenv("YZMA_LIB", "")
	client := NewLocalClient(LocalConfig{})
	defer client.Close()

	score, err := client.ScoreSleep(context.Background(), "woke up four times")
	if err == nil {
		t.Fatal("ScoreSleep() error = nil, want error without a model")
	}
	if score != 0 {
		t.Errorf("ScoreSleep() = %v, want 0 on error", score)
	}
}

func TestLocalClient_CloseTwice(t *testing.T) {
	client := NewLocalClient(LocalConfig{})
	for i := range 2 {
		if err := client.Close(); err != nil {
			t.Errorf("Close() #%d error = %v", i+1, err)
		}
	}
}
