package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/straja-ai/ulap/internal/decision"
	"github.com/straja-ai/ulap/internal/render"
	"github.com/straja-ai/ulap/internal/service"
)

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:   "classify <image>...",
	Short: "Classify image files and print the result",
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print one JSON object per image")
}

func runClassify(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoImages
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg.Logging)

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	failed := 0
	for _, path := range args {
		res, err := a.svc.ClassifyFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if res.Outcome.Tier == decision.TierFailed {
			failed++
		}
		if err := printResult(cmd.OutOrStdout(), path, res, classifyJSON); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be classified", failed, len(args))
	}
	return nil
}

type cliResult struct {
	Path string `json:"path"`
	render.View
	Cached bool `json:"cached,omitempty"`
}

func printResult(w io.Writer, path string, res *service.Result, asJSON bool) error {
	view := render.Outcome(res.Outcome)
	if asJSON {
		return json.NewEncoder(w).Encode(cliResult{Path: path, View: view, Cached: res.Cached})
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n\n", path, render.Text(view))
	return err
}
