package server

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// middleware is a function that wraps an http.Handler.
type middleware func(http.Handler) http.Handler

// chain applies multiple middleware in order.
func chain(h http.Handler, mw ...middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// recoveryMiddleware turns a panicking handler into a 500.
func recoveryMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("err", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Supported content codings, in server preference order, with the sibling suffix the
// compress plugin writes for each.
var encodings = []struct {
	name, ext string
}{
	{"zstd", ".zst"},
	{"gzip", ".gz"},
}

// negotiateEncoding picks the preferred coding the client accepts, or empty strings when none
// is. Weights only matter as q=0 refusals.
func negotiateEncoding(accept string) (name, ext string) {
	accepted := make(map[string]bool)
	for _, part := range strings.Split(accept, ",") {
		token, params, _ := strings.Cut(part, ";")
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		ok := true
		if v, found := strings.CutPrefix(strings.TrimSpace(params), "q="); found {
			if q, err := strconv.ParseFloat(v, 64); err == nil && q == 0 {
				ok = false
			}
		}
		accepted[token] = ok
	}
	for _, enc := range encodings {
		if accepted[enc.name] {
			return enc.name, enc.ext
		}
	}
	return "", ""
}

// compressMiddleware encodes responses on the fly with zstd or gzip. Responses that already
// carry a Content-Encoding (precompressed siblings) and event streams pass through untouched.
func compressMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, _ := negotiateEncoding(r.Header.Get("Accept-Encoding"))
			if name == "" || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")
			cw := &encodingWriter{ResponseWriter: w, encoding: name}
			defer func() {
				if err := cw.Close(); err != nil {
					logger.WarnContext(r.Context(), "close response encoder", slog.String("encoding", name), slog.Any("err", err))
				}
			}()
			next.ServeHTTP(cw, r)
		})
	}
}

type flushCloser interface {
	io.WriteCloser
	Flush() error
}

type encodingWriter struct {
	http.ResponseWriter
	encoding    string
	enc         flushCloser
	wroteHeader bool
}

func (w *encodingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	passthrough := h.Get("Content-Encoding") != "" ||
		strings.HasPrefix(h.Get("Content-Type"), "text/event-stream") ||
		status == http.StatusNoContent || status == http.StatusNotModified ||
		status < http.StatusOK
	if !passthrough {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		switch w.encoding {
		case "zstd":
			enc, err := zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.SpeedFastest))
			if err == nil {
				w.enc = enc
			} else {
				h.Del("Content-Encoding")
			}
		default:
			w.enc = gzip.NewWriter(w.ResponseWriter)
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *encodingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.enc == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.enc.Write(b)
}

// Flush implements http.Flusher.
func (w *encodingWriter) Flush() {
	if w.enc != nil {
		_ = w.enc.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close flushes the encoder, if one was started.
func (w *encodingWriter) Close() error {
	if w.enc == nil {
		return nil
	}
	return w.enc.Close()
}

// noCacheMiddleware disables browser caching so a reload always sees the latest build.
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request when verbose. Server errors are logged always.
func loggingMiddleware(logger *slog.Logger, verbose bool) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelError
			} else if !verbose {
				return
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.Int("status", sw.status),
				slog.Int64("bytes", sw.bytes),
				slog.String("encoding", w.Header().Get("Content-Encoding")),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Flush implements http.Flusher so event streams work with request logging enabled.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

