package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/ulap/internal/imageio"
)

var benchIterations int

var benchCmd = &cobra.Command{
	Use:   "bench <image>",
	Short: "Measure classifier latency on one image",
	Args:  cobra.ExactArgs(1),
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchIterations, "n", 200, "number of iterations")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg.Logging)

	img, err := imageio.Open(args[0], cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	ctx := cmd.Context()
	// Warmup
	for i := 0; i < 5; i++ {
		if _, err := a.model.Classify(ctx, img.Image); err != nil {
			return fmt.Errorf("warmup classify failed: %w", err)
		}
	}

	n := benchIterations
	if n <= 0 {
		n = 1
	}
	durations := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if _, err := a.model.Classify(ctx, img.Image); err != nil {
			return fmt.Errorf("classify failed: %w", err)
		}
		durations = append(durations, time.Since(start))
	}

	return printBench(cmd.OutOrStdout(), durations, cfg.Model.InputSize, cfg.Model.Path)
}

func printBench(w io.Writer, durations []time.Duration, inputSize int, modelPath string) error {
	if len(durations) == 0 {
		return fmt.Errorf("no samples")
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	avg := ms(total) / float64(len(durations))
	p50 := ms(durations[len(durations)/2])
	p95 := ms(durations[int(float64(len(durations)-1)*0.95)])

	_, err := fmt.Fprintf(w, "bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f input_size=%d model=%s\n",
		len(durations),
		avg,
		p50,
		p95,
		inputSize,
		modelPath,
	)
	return err
}
