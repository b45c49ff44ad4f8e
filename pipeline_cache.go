// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/autoexposure/gpucore"
)

// pipelineKey identifies one specialization. Two views asking for the
// same key share the pipeline.
type pipelineKey struct {
	shader gpucore.ShaderModuleID
	layout gpucore.PipelineLayoutID
	pass   Pass
}

// pipelineCache memoizes compute pipelines per pipelineKey.
//
// Build failures are cached too, so a broken variant is not rebuilt on
// every request; forgetFailures drops them when something that could
// fix the build changes.
//
// pipelineCache is safe for concurrent use. It uses RWMutex with
// double-check locking for efficient reads and safe writes.
type pipelineCache struct {
	adapter gpucore.GPUAdapter
	label   string

	mu        sync.RWMutex
	pipelines map[pipelineKey]gpucore.ComputePipelineID
	failures  map[pipelineKey]*PipelineBuildError

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newPipelineCache(adapter gpucore.GPUAdapter, label string) *pipelineCache {
	return &pipelineCache{
		adapter:   adapter,
		label:     label,
		pipelines: make(map[pipelineKey]gpucore.ComputePipelineID),
		failures:  make(map[pipelineKey]*PipelineBuildError),
	}
}

// specialize returns the pipeline for key, building it on first use.
func (c *pipelineCache) specialize(key pipelineKey) (gpucore.ComputePipelineID, error) {
	// Fast path: read lock
	c.mu.RLock()
	if id, ok := c.pipelines[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return id, nil
	}
	if perr, ok := c.failures[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return gpucore.InvalidID, perr
	}
	c.mu.RUnlock()

	// Slow path: write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.pipelines[key]; ok {
		c.hits.Add(1)
		return id, nil
	}
	if perr, ok := c.failures[key]; ok {
		c.hits.Add(1)
		return gpucore.InvalidID, perr
	}

	c.misses.Add(1)
	id, err := c.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        c.label + "_" + key.pass.String(),
		Layout:       key.layout,
		ShaderModule: key.shader,
		EntryPoint:   key.pass.EntryPoint(),
	})
	if err != nil {
		perr := &PipelineBuildError{Pass: key.pass, Err: err}
		c.failures[key] = perr
		Logger().Warn("autoexposure: pipeline build failed", "pass", key.pass, "err", err)
		return gpucore.InvalidID, perr
	}
	c.pipelines[key] = id
	Logger().Debug("autoexposure: pipeline built", "pass", key.pass, "id", id)
	return id, nil
}

// forgetFailures drops cached build failures so the next request retries.
func (c *pipelineCache) forgetFailures() {
	c.mu.Lock()
	clear(c.failures)
	c.mu.Unlock()
}

// evictShader destroys every pipeline built from shader.
func (c *pipelineCache) evictShader(shader gpucore.ShaderModuleID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, id := range c.pipelines {
		if key.shader == shader {
			c.adapter.DestroyComputePipeline(id)
			delete(c.pipelines, key)
		}
	}
	for key := range c.failures {
		if key.shader == shader {
			delete(c.failures, key)
		}
	}
}

// clear destroys all cached pipelines and forgets failures.
func (c *pipelineCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.pipelines {
		c.adapter.DestroyComputePipeline(id)
	}
	clear(c.pipelines)
	clear(c.failures)
}

// stats returns a snapshot of the cache counters.
func (c *pipelineCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Pipelines: len(c.pipelines),
		Failures:  len(c.failures),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}
}

// CacheStats describes the pipeline cache.
type CacheStats struct {
	// Pipelines is the number of live pipelines.
	Pipelines int
	// Failures is the number of remembered build failures.
	Failures int
	// Hits and Misses count lookups served from the cache and builds attempted.
	Hits   uint64
	Misses uint64
}

// HitRate returns Hits / (Hits + Misses), or 0 before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
