// Package server provides the development HTTP server: it serves the build output, streams
// build results over server-sent events and reloads open pages after each rebuild.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/euforicio/bundlekit/internal/compiler"
	"github.com/euforicio/bundlekit/internal/config"
	"github.com/euforicio/bundlekit/internal/watch"
	"github.com/euforicio/bundlekit/static"
)

// LiveReloadPath is the URL of the live reload client injected into served HTML.
const LiveReloadPath = "/__bundlekit/livereload.js"

// BuildEvents publishes build results. *watch.Watcher satisfies it.
type BuildEvents interface {
	Subscribe(ctx context.Context) <-chan watch.Event
	Last() (watch.Event, bool)
}

// StatsSource exposes the latest build stats. *compiler.Compiler satisfies it.
type StatsSource interface {
	LastStats() *compiler.Stats
}

// Server serves the output directory of a watched build.
type Server struct { //nolint:govet // field order favors logical grouping over padding optimizations
	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	events     BuildEvents
	stats      StatsSource
	cfg        config.Config
	root       http.Dir
}

// New constructs a Server for the output directory of cfg.
func New(cfg config.Config, logger *slog.Logger, events BuildEvents, stats StatsSource) (*Server, error) {
	if events == nil {
		return nil, errors.New("build events must be provided")
	}
	if stats == nil {
		return nil, errors.New("stats source must be provided")
	}
	if strings.TrimSpace(cfg.Output.Path) == "" {
		return nil, errors.New("output path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: logger.With("component", "http"),
		events: events,
		stats:  stats,
		root:   http.Dir(cfg.Output.Path),
	}
	s.registerRoutes()
	s.handler = chain(s.mux,
		recoveryMiddleware(s.logger),
		compressMiddleware(s.logger),
		noCacheMiddleware,
		loggingMiddleware(s.logger, cfg.Verbose),
	)
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET "+LiveReloadPath, s.handleLiveReload)
	s.mux.HandleFunc("GET /", s.handleFiles)
}

// ServeHTTP implements http.Handler with the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on the configured host and port (a free port when the port is 0) and serves
// until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Dev.Host, strconv.Itoa(s.cfg.Dev.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return fmt.Errorf("unexpected listener address type")
	}
	serverURL := fmt.Sprintf("http://localhost:%d", tcpAddr.Port)

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /events streams for the lifetime of the page.
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if _, err := fmt.Fprintf(os.Stdout, "bundlekit dev server listening on %s\n", serverURL); err != nil {
			s.logger.Warn("failed to announce server address", slog.String("url", serverURL), slog.Any("err", err))
		}
		errCh <- s.httpServer.Serve(listener)
	}()

	if s.cfg.Dev.Open {
		go s.openBrowserWhenReady(ctx, serverURL)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.stats.LastStats()
	if stats == nil {
		last, _ := s.events.Last()
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "no successful build yet",
			"last":  last,
		})
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLiveReload(w http.ResponseWriter, r *http.Request) {
	raw, err := static.FS().Open(static.LiveReloadScript)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer raw.Close()
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	if _, err := io.Copy(w, raw); err != nil {
		s.logger.DebugContext(r.Context(), "write live reload script", slog.Any("err", err))
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.events.Subscribe(ctx)

	if _, err := w.Write([]byte(": ready\n\n")); err != nil {
		return
	}
	// Replay the latest result so a fresh page learns the current hash.
	if last, ok := s.events.Last(); ok {
		if !s.writeEvent(ctx, w, last) {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !s.writeEvent(ctx, w, evt) {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, w io.Writer, evt watch.Event) bool {
	payload, err := encodeJSON(evt)
	if err != nil {
		s.logger.WarnContext(ctx, "encode sse event failed", slog.Any("err", err))
		return true
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err == nil
}

// handleFiles serves the output directory. HTML documents get the live reload client.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	f, err := s.root.Open(name)
	if err != nil {
		s.respondOpenError(w, r, err)
		return
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		http.Error(w, "failed to stat file", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		_ = f.Close()
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, "index.html")
		if f, err = s.root.Open(name); err != nil {
			s.respondOpenError(w, r, err)
			return
		}
		if info, err = f.Stat(); err != nil {
			_ = f.Close()
			http.Error(w, "failed to stat file", http.StatusInternalServerError)
			return
		}
	}
	defer f.Close()

	if !strings.EqualFold(path.Ext(name), ".html") {
		if s.servePrecompressed(w, r, name) {
			return
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	body, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	body = injectLiveReload(body)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(body))
}

// servePrecompressed answers with the .zst or .gz sibling of name when the build emitted one
// the client accepts. Range requests always get the identity file.
func (s *Server) servePrecompressed(w http.ResponseWriter, r *http.Request, name string) bool {
	if r.Header.Get("Range") != "" {
		return false
	}
	encoding, ext := negotiateEncoding(r.Header.Get("Accept-Encoding"))
	if encoding == "" {
		return false
	}
	f, err := s.root.Open(name + ext)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	w.Header().Set("Content-Encoding", encoding)
	http.ServeContent(w, r, name, info.ModTime(), f)
	return true
}

func (s *Server) respondOpenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	s.logger.WarnContext(r.Context(), "open output file failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	http.Error(w, "failed to open file", http.StatusInternalServerError)
}

// injectLiveReload adds the live reload script before </body>, or at the end of the document.
func injectLiveReload(doc []byte) []byte {
	tag := []byte(`<script src="` + LiveReloadPath + `"></script>`)
	at := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if at < 0 {
		return append(doc, tag...)
	}
	out := make([]byte, 0, len(doc)+len(tag))
	out = append(out, doc[:at]...)
	out = append(out, tag...)
	return append(out, doc[at:]...)
}

func (s *Server) openBrowserWhenReady(ctx context.Context, url string) {
	timer := time.NewTimer(300 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := openBrowser(ctx, url); err != nil {
			s.logger.WarnContext(ctx, "auto-open failed", slog.String("url", url), slog.Any("err", err))
		}
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}
	return cmd.Start()
}
