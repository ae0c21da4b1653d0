package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const namePrefix = "amazon_crawler_"

// ServeHTTP serves the registry in Prometheus text exposition format.
// Counters and numeric gauges are untyped; text gauges are exported as info-style series.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	snap := r.Snapshot()
	for _, name := range sortedKeys(snap) {
		metric := namePrefix + snakeCase(name)
		fmt.Fprintf(w, "# TYPE %s untyped\n", metric)
		fmt.Fprintf(w, "%s %d\n", metric, snap[name])
	}
	labels := r.Labels()
	for _, name := range sortedKeys(labels) {
		metric := namePrefix + snakeCase(name) + "_info"
		fmt.Fprintf(w, "# TYPE %s gauge\n", metric)
		fmt.Fprintf(w, "%s{value=%q} 1\n", metric, labels[name])
	}
}

// snakeCase converts camelCase counter names to metric-friendly snake_case
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StartServer serves the registry on addr until ctx is cancelled
func (r *Registry) StartServer(ctx context.Context, addr, path string, logger *logrus.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, r)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("Metrics server listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
