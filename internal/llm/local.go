//go:build llamacpp

package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// llama.Load and llama.Init are process-global.
var (
	libOnce    sync.Once
	libLoadErr error
)

func loadLib(libPath string) error {
	libOnce.Do(func() {
		if err := llama.Load(libPath); err != nil {
			libLoadErr = fmt.Errorf("loading yzma shared library from %q: %w", libPath, err)
			return
		}
		llama.LogSet(llama.LogSilent())
		llama.Init()
	})
	return libLoadErr
}

// LocalClient scores sleep descriptions with a local GGUF embedding model via
// hybridgroup/yzma. The description is embedded and compared against a
// poor-sleep and a good-sleep anchor; the difference becomes the score.
// All model access is serialized.
type LocalClient struct {
	libPath   string
	modelPath string
	gpuLayers int

	mu      sync.Mutex
	model   llama.Model
	vocab   llama.Vocab
	nEmbd   int32
	loaded  bool
	loadErr error
	once    sync.Once

	anchors struct {
		poor, good []float32
	}
}

// NewLocalClient creates a new LocalClient. The model is not loaded until first use.
func NewLocalClient(cfg LocalConfig) *LocalClient {
	return &LocalClient{
		libPath:   cfg.LibPath,
		modelPath: cfg.ModelPath,
		gpuLayers: cfg.GPULayers,
	}
}

func (c *LocalClient) resolveLibPath() string {
	if c.libPath != "" {
		return c.libPath
	}
	return os.Getenv("YZMA_LIB")
}

func (c *LocalClient) loadModel() error {
	c.once.Do(func() {
		if c.modelPath == "" {
			c.loadErr = fmt.Errorf("no model path configured")
			return
		}
		libPath := c.resolveLibPath()
		if libPath == "" {
			c.loadErr = fmt.Errorf("no library path configured (set feedback.local_lib_path or YZMA_LIB)")
			return
		}
		if err := loadLib(libPath); err != nil {
			c.loadErr = err
			return
		}

		params := llama.ModelDefaultParams()
		params.NGpuLayers = int32(min(c.gpuLayers, math.MaxInt32))

		model, err := llama.ModelLoadFromFile(c.modelPath, params)
		if err != nil {
			c.loadErr = fmt.Errorf("loading model %s: %w", c.modelPath, err)
			return
		}
		if model == 0 {
			c.loadErr = fmt.Errorf("loading model %s: returned null handle", c.modelPath)
			return
		}

		c.model = model
		c.vocab = llama.ModelGetVocab(model)
		c.nEmbd = int32(llama.ModelNEmbd(model))
		c.loaded = true
	})
	return c.loadErr
}

// Available returns true if both the library directory and model file exist on disk.
// It does not load anything.
func (c *LocalClient) Available() bool {
	libPath := c.resolveLibPath()
	if libPath == "" || c.modelPath == "" {
		return false
	}
	if info, err := os.Stat(libPath); err != nil || !info.IsDir() {
		return false
	}
	_, err := os.Stat(c.modelPath)
	return err == nil
}

// ScoreSleep embeds the description and scores it against the anchors.
func (c *LocalClient) ScoreSleep(ctx context.Context, description string) (float64, error) {
	if err := c.loadModel(); err != nil {
		return 0, fmt.Errorf("local score: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.anchors.poor == nil {
		poor, err := c.embedLocked(ctx, poorSleepAnchor)
		if err != nil {
			return 0, fmt.Errorf("embedding poor-sleep anchor: %w", err)
		}
		good, err := c.embedLocked(ctx, goodSleepAnchor)
		if err != nil {
			return 0, fmt.Errorf("embedding good-sleep anchor: %w", err)
		}
		c.anchors.poor, c.anchors.good = poor, good
	}

	vec, err := c.embedLocked(ctx, description)
	if err != nil {
		return 0, fmt.Errorf("embedding description: %w", err)
	}
	return AnchorScore(CosineSimilarity(vec, c.anchors.poor), CosineSimilarity(vec, c.anchors.good)), nil
}

// embedLocked creates a fresh llama context, embeds text and frees the
// context. Caller holds c.mu.
func (c *LocalClient) embedLocked(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := llama.Tokenize(c.vocab, text, true, true)

	ctxParams := llama.ContextDefaultParams()
	ctxParams.NCtx = uint32(len(tokens) + 64)

	lctx, err := llama.InitFromModel(c.model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("creating embedding context: %w", err)
	}
	defer func() { _ = llama.Free(lctx) }()

	llama.SetEmbeddings(lctx, true)

	if _, err := llama.Decode(lctx, llama.BatchGetOne(tokens)); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}

	raw, err := llama.GetEmbeddingsSeq(lctx, 0, c.nEmbd)
	if err != nil {
		return nil, fmt.Errorf("getting embeddings: %w", err)
	}

	// raw is owned by lctx
	vec := make([]float32, len(raw))
	copy(vec, raw)
	normalize(vec)
	return vec, nil
}

// Close releases the model. Safe to call multiple times. The shared library
// stays loaded.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		_ = llama.ModelFree(c.model)
		c.model = 0
		c.vocab = 0
		c.nEmbd = 0
		c.loaded = false
		c.anchors.poor, c.anchors.good = nil, nil
		c.once = sync.Once{}
	}
	return nil
}
