// Package webhook triggers sync cycles from GitHub push webhooks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	stdsync "sync"
	"time"

	"github.com/schaermu/syncbot/internal/config"
	"github.com/schaermu/syncbot/internal/sync"
)

// DebounceDelay is how long the server waits for further pushes before syncing
const DebounceDelay = 2 * time.Second

// Syncer runs reconciliation cycles. *sync.Controller satisfies it.
type Syncer interface {
	CheckAndSync(ctx context.Context) sync.Outcome
}

// GitHubPushEvent represents the relevant fields from a GitHub push webhook
type GitHubPushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Server implements the webhook HTTP server
type Server struct {
	serve    config.ServeConfig
	syncer   Syncer
	logger   *slog.Logger
	secret   []byte
	debounce *debouncer

	ctxMu stdsync.Mutex
	ctx   context.Context // scope of debounced syncs
}

// debouncer collapses bursts of triggers into one callback
type debouncer struct {
	mu       stdsync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a webhook server that runs syncer on accepted pushes
func NewServer(serve config.ServeConfig, syncer Syncer, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("webhook secret file %s is empty", serve.GitHubWebhookSecretFile)
	}

	return &Server{
		serve:    serve,
		syncer:   syncer,
		logger:   logger,
		secret:   secret,
		debounce: &debouncer{delay: DebounceDelay},
		ctx:      context.Background(),
	}, nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleWebhook)
	return mux
}

// Start serves webhooks on ln until ctx is cancelled. A nil ln listens on the
// configured address.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.serve.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.serve.ListenAddr, err)
		}
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		s.debounce.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.debounce.stop()
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ok\n")
}

// handleWebhook handles incoming GitHub webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType, "delivery", r.Header.Get("X-GitHub-Delivery"))

	if eventType == "ping" {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "pong\n")
		return
	}

	if !allowed(s.serve.AllowedEventTypes, eventType) {
		s.logger.Info("ignoring disallowed event type", "event", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for sync\n")
		return
	}

	var event GitHubPushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !allowed(s.serve.AllowedRefs, event.Ref) {
		s.logger.Info("ignoring disallowed ref", "ref", event.Ref)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Ref not configured for sync\n")
		return
	}

	s.logger.Info("webhook accepted",
		"event", eventType,
		"ref", event.Ref,
		"commit", event.After,
		"repo", event.Repository.FullName)

	s.debounce.trigger(func() {
		s.performSync(s.syncContext())
	})

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Sync triggered\n")
}

func (s *Server) syncContext() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return s.ctx
}

// verifySignature checks a "sha256=<hex>" HMAC of body in constant time
func (s *Server) verifySignature(body []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || hexSig == "" {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(hexSig), []byte(expected))
}

// allowed reports whether v is in list. An empty list allows everything.
func allowed(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

// performSync runs one cycle. Overlapping triggers are coalesced by the syncer.
func (s *Server) performSync(ctx context.Context) {
	s.logger.Info("performing webhook-triggered sync")

	out := s.syncer.CheckAndSync(ctx)
	switch {
	case out.Coalesced:
		s.logger.Info("sync already running, follow-up cycle queued")
	case out.Err != nil:
		s.logger.Error("webhook-triggered sync failed", "error", out.Err)
	default:
		s.logger.Info("webhook-triggered sync completed", "pushed", out.Pushed, "pulled", out.Pulled)
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
