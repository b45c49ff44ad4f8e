// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command aedemo meters a synthetic HDR scene whose lighting changes
// over time and logs how the exposure adapts.
//
// The scene moves from a dim interior to bright daylight and back to
// dusk. With -config the exposure settings, curve and metering mask are
// read from a TOML file, and with -watch edits to that file or to the
// shader it names are applied while the demo runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gogpu/autoexposure"
	"github.com/gogpu/autoexposure/config"
	"github.com/gogpu/autoexposure/gpucore"
	"github.com/gogpu/autoexposure/internal/software"
	"github.com/gogpu/autoexposure/internal/watch"
)

func main() {
	var (
		width   = flag.Int("width", 128, "scene width")
		height  = flag.Int("height", 72, "scene height")
		frames  = flag.Int("frames", 600, "frames to run, 0 for no limit")
		fps     = flag.Float64("fps", 60, "simulated frame rate")
		views   = flag.Int("views", 1, "number of views metering the scene")
		useGPU  = flag.Bool("gpu", false, "use the Vulkan backend instead of the software adapter")
		cfgPath = flag.String("config", "", "TOML exposure configuration")
		hot     = flag.Bool("watch", false, "reload -config and its shader on change")
		debug   = flag.Bool("debug", false, "debug logging")
		every   = flag.Int("every", 30, "log every N frames")
	)
	flag.Parse()

	logger := newLogger(*debug)
	autoexposure.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := demo{
		width:  uint32(max(*width, 1)),
		height: uint32(max(*height, 1)),
		frames: *frames,
		dt:     float32(1 / *fps),
		views:  max(*views, 1),
		every:  max(*every, 1),
		log:    logger,
	}
	if err := d.run(ctx, *useGPU, *cfgPath, *hot); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("aedemo failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	h := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "aedemo",
	})
	if debug {
		h.SetLevel(log.DebugLevel)
	}
	return slog.New(h)
}

type demo struct {
	width, height uint32
	frames        int
	dt            float32
	views         int
	every         int
	log           *slog.Logger

	cfg     config.Config
	cfgDir  string
	binding config.Binding
}

func (d *demo) run(ctx context.Context, useGPU bool, cfgPath string, hot bool) error {
	adapter, closeAdapter, err := openAdapter(useGPU)
	if err != nil {
		return err
	}
	defer closeAdapter()

	d.cfg = config.Default()
	if cfgPath != "" {
		if d.cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		d.cfgDir = filepath.Dir(cfgPath)
	}
	src, err := d.cfg.ShaderSource(d.cfgDir)
	if err != nil {
		return err
	}

	ae, err := autoexposure.New(adapter,
		autoexposure.WithShaderSource(src),
		autoexposure.WithSettings(d.cfg.Settings()),
		autoexposure.WithInitialViewCapacity(d.views),
		autoexposure.WithLabel("aedemo"),
	)
	if err != nil {
		return err
	}
	defer ae.Close()

	var vs []*autoexposure.View
	for i := 0; i < d.views; i++ {
		v, err := ae.AddView(autoexposure.ViewConfig{})
		if v == nil {
			return err
		}
		if err != nil {
			d.log.Warn("view added disabled", "view", i, "err", err)
		}
		vs = append(vs, v)
	}
	if err := d.cfg.Apply(ae, &d.binding, d.cfgDir); err != nil {
		d.log.Warn("config applied with errors", "err", err)
	}

	if hot && cfgPath != "" {
		w, err := d.startWatcher(ctx, ae, cfgPath)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	sc, err := newScene(adapter, d.width, d.height)
	if err != nil {
		return err
	}
	defer adapter.DestroyTexture(sc.texture)

	var tick <-chan time.Time
	if hot {
		t := time.NewTicker(time.Duration(float64(d.dt) * float64(time.Second)))
		defer t.Stop()
		tick = t.C
	}

	for frame := 0; d.frames == 0 || frame < d.frames; frame++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		seconds := float64(frame) * float64(d.dt)
		if err := sc.render(adapter, seconds); err != nil {
			return err
		}
		f := autoexposure.Frame{DeltaTime: d.dt}
		for i, v := range vs {
			f.Views = append(f.Views, autoexposure.ViewFrame{
				View:     v.ID(),
				Color:    sc.texture,
				Viewport: d.viewport(i),
			})
		}
		if err := ae.Dispatch(f); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if frame%d.every == 0 {
			d.report(frame, seconds, sc, vs)
		}
	}
	return nil
}

// viewport splits the scene into vertical strips, one per view.
func (d *demo) viewport(i int) autoexposure.Viewport {
	w := d.width / uint32(d.views)
	vp := autoexposure.Viewport{X: uint32(i) * w, Width: w, Height: d.height}
	if i == d.views-1 {
		vp.Width = d.width - vp.X
	}
	return vp
}

func (d *demo) report(frame int, seconds float64, s *scene, vs []*autoexposure.View) {
	for i, v := range vs {
		lum, err := v.ReadLuminance()
		if err != nil {
			d.log.Error("read luminance", "view", i, "err", err)
			continue
		}
		d.log.Info("exposure",
			"frame", frame,
			"t", fmt.Sprintf("%.2fs", seconds),
			"view", i,
			"scene", fmt.Sprintf("%.3f", s.key),
			"adapted", fmt.Sprintf("%.3f", lum),
			"ev", fmt.Sprintf("%+.2f", math.Log2(float64(lum))),
			"enabled", v.Enabled(),
		)
	}
}

func (d *demo) startWatcher(ctx context.Context, ae *autoexposure.AutoExposure, cfgPath string) (*watch.Watcher, error) {
	w, err := watch.New(watch.WithLogger(d.log))
	if err != nil {
		return nil, err
	}
	var reload watch.Handler
	reload = func(string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if p := c.ShaderPath(d.cfgDir); p != "" {
			if err := w.Watch(p, reload); err != nil {
				return err
			}
		}
		return c.Apply(ae, &d.binding, d.cfgDir)
	}
	if err := w.Watch(cfgPath, reload); err != nil {
		_ = w.Close()
		return nil, err
	}
	if p := d.cfg.ShaderPath(d.cfgDir); p != "" {
		if err := w.Watch(p, reload); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("watcher stopped", "err", err)
		}
	}()
	return w, nil
}

func openAdapter(useGPU bool) (gpucore.GPUAdapter, func(), error) {
	if useGPU {
		return openGPU()
	}
	a := software.New(software.WithWorkers(0))
	return a, a.Close, nil
}
