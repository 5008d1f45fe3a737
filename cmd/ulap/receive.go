package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/ulap/internal/events"
)

var receiveAddr string

// receiveEventsCmd runs a local endpoint for testing webhook event sinks.
var receiveEventsCmd = &cobra.Command{
	Use:   "receive-events",
	Short: "Log classification events POSTed by a webhook sink",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer cancel()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		srv := &http.Server{
			Addr:              receiveAddr,
			Handler:           eventReceiver(logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()

		logger.Info("event receiver listening (POST JSON to /events)", "addr", receiveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	receiveEventsCmd.Flags().StringVar(&receiveAddr, "addr", ":8099", "listen address for the event receiver")
}

func eventReceiver(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		var ev events.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Warn("received malformed event", "path", r.URL.Path, "len", len(body), "error", err)
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		logger.Info("received event",
			"id", ev.ID,
			"source", ev.Source,
			"tier", ev.Tier,
			"category", ev.Category,
			"confidence", ev.Confidence,
			"reason", ev.Reason,
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"ok"}`+"\n")
	})
}
