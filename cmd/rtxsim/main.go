// Command rtxsim assembles a single-core accelerator from flags, runs it
// for a fixed cycle budget, and prints the final report — the minimal
// wiring demonstration the teacher's samples/fir/main.go plays for the
// zeonica CGRA: build a device, run it, print what came out.
package main

import (
	"flag"
	"fmt"
	"os"

	"log/slog"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/rtxsim/accelerator"
	"github.com/sarchlab/rtxsim/config"
	"github.com/sarchlab/rtxsim/simlog"
)

func main() {
	sceneName := flag.String("scene", "demo", "scene name, for reporting only")
	cycles := flag.Uint64("cycles", 10000, "number of cycles to run")
	numRTCores := flag.Int("rtcores", 1, "RT core count recorded in the config (the accelerator always wires one RT core)")
	l1Size := flag.Uint64("l1-size", 1<<15, "L1 cache size in bytes")
	l1Assoc := flag.Int("l1-assoc", 4, "L1 cache associativity")
	l2Size := flag.Uint64("l2-size", 1<<20, "L2 cache size in bytes")
	l2Assoc := flag.Int("l2-assoc", 8, "L2 cache associativity")
	fbWidth := flag.Int("width", 64, "framebuffer width")
	fbHeight := flag.Int("height", 64, "framebuffer height")
	trace := flag.Bool("trace", false, "log at trace level and above only (trace records are emitted at the default Info level too)")
	flag.Parse()

	level := slog.LevelInfo
	if *trace {
		level = simlog.LevelTrace
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	cfg, err := config.NewBuilder().
		WithSceneName(*sceneName).
		WithThreadCounts(1, 1, 1, *numRTCores).
		WithL1(*l1Size, *l1Assoc, false).
		WithL2(*l2Size, *l2Assoc, false).
		WithFramebuffer(*fbWidth, *fbHeight).
		Build()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		atexit.Exit(1)
	}

	slog.Info("built configuration", "scene", cfg.SceneName, "rtcores", cfg.NumRTCores)

	acc := accelerator.NewBuilder(cfg).Build("RTX0")

	for c := uint64(0); c < *cycles; c++ {
		acc.Step()
	}

	framebuffer := make([]byte, cfg.FramebufferWidth*cfg.FramebufferHeight*4)
	report := acc.Report(framebuffer)
	fmt.Println(report.Render())

	atexit.Exit(0)
}
