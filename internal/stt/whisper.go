package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clipd/internal/execx"
	"clipd/internal/logger"
)

// ModelCache remembers resolved model files and per-model device
// decisions for the life of the process. One cache is shared by all
// workers; engines are cheap per-job wrappers around it.
type ModelCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

type cacheKey struct {
	size   string
	device string
}

type cacheEntry struct {
	modelPath string
	cpuOnly   bool // GPU failed once for this model, don't retry
}

// NewModelCache returns an empty cache.
func NewModelCache() *ModelCache {
	return &ModelCache{entries: make(map[cacheKey]*cacheEntry)}
}

func (c *ModelCache) get(size, device string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{size: size, device: device}
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

// WhisperEngine shells out to a whisper.cpp CLI (whisper-cli). The model
// size maps to a ggml model file under ModelDir. GPU inference is
// attempted first; a GPU failure falls back to CPU and the fallback is
// remembered so later jobs skip the doomed attempt.
type WhisperEngine struct {
	Bin      string
	ModelDir string
	Size     string
	Device   string // "auto" (default), "gpu" or "cpu"
	Cache    *ModelCache
}

// NewWhisperEngine builds an engine for one model size sharing the given
// cache.
func NewWhisperEngine(bin, modelDir, size string, cache *ModelCache) *WhisperEngine {
	if bin == "" {
		bin = "whisper-cli"
	}
	if size == "" {
		size = "tiny"
	}
	if cache == nil {
		cache = NewModelCache()
	}
	return &WhisperEngine{Bin: bin, ModelDir: modelDir, Size: size, Device: "auto", Cache: cache}
}

// ModelPath resolves the ggml model file for a size.
func (e *WhisperEngine) ModelPath() (string, error) {
	entry := e.Cache.get(e.Size, e.Device)
	e.Cache.mu.Lock()
	cached := entry.modelPath
	e.Cache.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	path := filepath.Join(e.ModelDir, fmt.Sprintf("ggml-%s.bin", e.Size))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("whisper model %q not found at %s", e.Size, path)
	}
	e.Cache.mu.Lock()
	entry.modelPath = path
	e.Cache.mu.Unlock()
	return path, nil
}

// Transcribe runs the CLI on a mono 16 kHz WAV and parses the JSON
// transcript it writes next to workDir/whisper.json.
func (e *WhisperEngine) Transcribe(ctx context.Context, wavPath, workDir, lang string) (*Transcript, error) {
	model, err := e.ModelPath()
	if err != nil {
		return nil, err
	}

	entry := e.Cache.get(e.Size, e.Device)
	e.Cache.mu.Lock()
	cpuOnly := entry.cpuOnly || e.Device == "cpu"
	e.Cache.mu.Unlock()

	outPrefix := filepath.Join(workDir, "whisper")
	run := func(noGPU bool) error {
		args := []string{
			"-m", model,
			"-f", wavPath,
			"-oj",
			"-of", outPrefix,
		}
		if lang != "" {
			args = append(args, "-l", lang)
		}
		if noGPU {
			args = append(args, "-ng")
		}
		_, err := execx.Run(ctx, e.Bin, args...)
		return err
	}

	if err := run(cpuOnly); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cpuOnly {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
		// GPU path failed; retry once on CPU and remember.
		logger.Warn("GPU transcription failed, falling back to CPU", "model", e.Size, "error", err)
		e.Cache.mu.Lock()
		entry.cpuOnly = true
		e.Cache.mu.Unlock()
		if err := run(true); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("transcribe: %w", err)
		}
	}

	data, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("transcribe: read output: %w", err)
	}
	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("transcribe: parse output: %w", err)
	}
	for i := range tr.Segments {
		tr.Segments[i].Text = strings.TrimSpace(tr.Segments[i].Text)
		for j := range tr.Segments[i].Words {
			tr.Segments[i].Words[j].Word = strings.TrimSpace(tr.Segments[i].Words[j].Word)
		}
	}
	return &tr, nil
}
