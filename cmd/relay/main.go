// wg-bridge relays WireGuard-shaped handshake and transport datagrams
// between peers behind NAT. It never sees key material or plaintext.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hurzhurz/wg-bridge/internal/adminserver"
	"github.com/hurzhurz/wg-bridge/internal/config"
	"github.com/hurzhurz/wg-bridge/internal/logging"
	"github.com/hurzhurz/wg-bridge/internal/metrics"
	"github.com/hurzhurz/wg-bridge/internal/relaycore"
	"github.com/hurzhurz/wg-bridge/internal/transport"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// repeatedFlag collects a flag passed multiple times, e.g. --keys.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	port := flag.Int("port", 0, "UDP port to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logFormat := flag.String("log-format", "", "log format: json or console (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "admin HTTP listen address (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	var keyFlags repeatedFlag
	flag.Var(&keyFlags, "keys", "comma-separated base64 public keys forming one group; repeat the flag for more groups")
	flag.Parse()

	if *showVersion {
		fmt.Println("wg-bridge", version, buildTime, gitCommit)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnvironment()

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	for _, group := range keyFlags {
		keys := strings.Split(group, ",")
		for i, k := range keys {
			keys[i] = strings.TrimSpace(k)
		}
		cfg.Groups = append(cfg.Groups, config.GroupConfig{Keys: keys})
	}

	log := logging.NewLogger(logging.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info().Str("version", version).Str("build_time", buildTime).Str("git_commit", gitCommit).Msg("starting wg-bridge")

	groupKeys, err := cfg.Keys()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid key configuration")
	}
	if len(groupKeys) == 0 {
		log.Fatal().Msg("no key groups configured: pass --keys or a config file with at least one group")
	}

	registry := relaycore.NewRegistry(groupKeys)
	macKeys, err := relaycore.NewMacKeyTable(registry.AllKeys())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive mac keys")
	}
	sessions := relaycore.NewSessionTable()

	sock, err := transport.Listen(cfg.Server.Port, cfg.Server.ReceiveTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind udp socket")
	}
	defer sock.Close()
	log.Info().Str("addr", sock.LocalAddr().String()).Int("groups", len(registry.Groups)).Msg("udp socket bound")

	m := metrics.New("wg_bridge")

	dispatcher := relaycore.NewDispatcher(relaycore.Config{
		MacKeys:  macKeys,
		Registry: registry,
		Sessions: sessions,
		Sender:   sock,
		Log:      log,
		Metrics:  m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	health := metrics.NewHealthChecker(version)
	health.RegisterCheck("udp_socket", metrics.AlwaysHealthy("udp socket bound"))

	var admin *adminserver.Server
	if cfg.Metrics.Enabled {
		admin = adminserver.New(cfg.Metrics, log, m, health, ready.Load)
		go func() {
			if err := admin.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Str("path", cfg.Metrics.Path).Msg("admin server listening")
	}

	ready.Store(true)
	runReceiveLoop(ctx, sock, dispatcher, log)

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin server shutdown error")
		}
	}
	log.Info().Msg("stopped")
}

// runReceiveLoop reads datagrams until ctx is cancelled, handing each one
// to the dispatcher and running the (internally rate-limited) expiry
// sweep after every read that returns a datagram or times out — the
// timeouts are what let the sweep run on a socket that's gone quiet
// (spec §4.3 step 1). A read error skips the sweep for that iteration.
func runReceiveLoop(ctx context.Context, sock *transport.Socket, d *relaycore.Dispatcher, log *logging.Logger) {
	buf := make([]byte, transport.MaxDatagramSize())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, timedOut, err := sock.ReadFrom(buf)
		if err != nil {
			log.Debug().Err(err).Msg("udp read error")
			continue
		}
		if !timedOut {
			d.HandleDatagram(buf[:n], from)
		}
		d.Sweep(time.Now())
	}
}
