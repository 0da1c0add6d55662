package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/mzyy94/airlabel/internal/config"
	"github.com/mzyy94/airlabel/internal/discovery"
	"github.com/mzyy94/airlabel/internal/dymo"
	"github.com/mzyy94/airlabel/internal/printer"
	"github.com/mzyy94/airlabel/internal/printjob"
	"github.com/mzyy94/airlabel/internal/service"
	"github.com/mzyy94/airlabel/internal/webui"
)

func main() {
	cfg, err := config.Load(os.Getenv("AIRLABEL_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv(os.Getenv)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := config.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open data dir", "path", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := printer.NewRegistry(printer.Options{
		DialTimeout: cfg.Printer.DialTimeout,
		IOTimeout:   cfg.Printer.IOTimeout,
	})
	disc := discovery.New(discovery.ZeroconfBrowser{}, registry, discovery.Options{
		ServiceType:    cfg.Discovery.ServiceType,
		Domain:         cfg.Discovery.Domain,
		VendorToken:    cfg.Discovery.VendorToken,
		Timeout:        cfg.Discovery.Timeout,
		HotStartWindow: cfg.Discovery.HotStartWindow,
	})
	svc := service.New(registry, disc, store, service.Options{
		PollInterval:     cfg.Printer.PollInterval,
		PollInitialDelay: cfg.Printer.PollInitialDelay,
		Print: printjob.Options{
			SendLabelLength: cfg.Print.SendLabelLength,
			ProofDir:        cfg.Print.ProofDir,
			DefaultMedia:    cfg.Print.DefaultMedia,
		},
	})
	defer svc.Close()

	if cfg.Printer.Static != "" {
		host, port, _ := cfg.StaticPrinter()
		ep := printer.NewEndpoint(dymo.VendorToken+" "+host, host, port)
		svc.AddPrinter(ep)
		if err := svc.SelectPrinter(ctx, ep.ID); err != nil {
			slog.Warn("static printer not reachable", "addr", ep.Addr(), "err", err)
		}
	}

	// Offer the saved printer at once, then browse for the rest.
	go func() {
		if cfg.Printer.Static == "" {
			if ep, ok := svc.HotStart(ctx); ok {
				slog.Info("saved printer available", "printer", ep.Name, "addr", ep.Addr())
			}
		}
		if _, err := svc.Discover(ctx); err != nil {
			slog.Warn("printer discovery failed", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/api/", webui.NewHandler(svc))

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: logMiddleware(mux),
	}

	if cfg.AdvertiseName != "" {
		mdnsServer, err := zeroconf.Register(
			cfg.AdvertiseName,
			"_http._tcp",
			"local.",
			cfg.ListenPort,
			[]string{"txtvers=1", "path=/api/", "product=airlabel"},
			nil,
		)
		if err != nil {
			slog.Error("mDNS registration failed", "err", err)
			os.Exit(1)
		}
		defer mdnsServer.Shutdown()
		slog.Info("mDNS registered", "name", cfg.AdvertiseName, "service", "_http._tcp")
	}

	go func() {
		slog.Info("API server starting", "addr", addr, "url", fmt.Sprintf("http://%s/api/", net.JoinHostPort(localIP(), strconv.Itoa(cfg.ListenPort))))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}

// localIP returns the address the OS would use to reach the LAN. Dialing UDP
// sends nothing; it only asks the routing table.
func localIP() string {
	conn, err := net.Dial("udp4", "224.0.0.1:80")
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
