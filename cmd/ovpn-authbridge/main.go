// ovpn-authbridge answers OpenVPN management interface authentication
// requests with credentials entered once at startup, and relays operator
// commands to the management interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/acolita/ovpn-authbridge/internal/adapters/realclock"
	"github.com/acolita/ovpn-authbridge/internal/adapters/realdialog"
	"github.com/acolita/ovpn-authbridge/internal/adapters/realfs"
	"github.com/acolita/ovpn-authbridge/internal/adapters/realnet"
	"github.com/acolita/ovpn-authbridge/internal/bridge"
	"github.com/acolita/ovpn-authbridge/internal/config"
	"github.com/acolita/ovpn-authbridge/internal/credentials"
	"github.com/acolita/ovpn-authbridge/internal/logging"
	"github.com/acolita/ovpn-authbridge/internal/ports"
	"github.com/acolita/ovpn-authbridge/internal/recovery"
	"github.com/acolita/ovpn-authbridge/internal/security"
	"github.com/acolita/ovpn-authbridge/internal/supervisor"
	"github.com/acolita/ovpn-authbridge/internal/transcript"
)

// Version information - set at build time.
var (
	Version   = "0.3.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		user        string
		useTOTP     bool
		debug       bool
		forget      bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&user, "user", "", "VPN username (overrides config)")
	flag.BoolVar(&useTOTP, "totp", false, "Prompt for a TOTP secret to answer static challenges")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&forget, "forget", false, "Delete stored credentials from the OS keyring and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] SOCK\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("ovpn-authbridge version %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return 0
	}

	if flag.NArg() > 1 {
		flag.Usage()
		return 2
	}

	// Load configuration. Only an explicitly named file has to exist.
	fsys := realfs.New()
	explicitConfig := configPath != ""
	if !explicitConfig {
		configPath = config.DefaultConfigPath(fsys)
	}
	cfg, err := config.Load(configPath, fsys)
	if err != nil {
		if explicitConfig || !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
		cfg = config.DefaultConfig()
		configPath = ""
	}

	if flag.NArg() == 1 {
		cfg.Socket = flag.Arg(0)
	}
	if user != "" {
		cfg.Username = user
	}
	if useTOTP {
		cfg.TOTP = true
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if cfg.Socket == "" {
		fmt.Fprintln(os.Stderr, "Error: management socket path is required")
		flag.Usage()
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}
	filter, err := security.NewCommandFilter(cfg.Security.CommandBlocklist, cfg.Security.CommandAllowlist)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)
	analyzer := recovery.NewAnalyzer()

	// Credentials
	resolver := &credentials.Resolver{Prompter: realdialog.New()}
	var keys *security.KeyringStore
	if cfg.Security.UseKeyring || forget {
		keys = security.NewKeyringStore()
		if keys.IsEnabled() {
			resolver.Store = keys
		} else {
			slog.Warn("OS keyring unavailable, credentials will not be stored")
		}
	}

	username, err := resolver.Username(cfg.Username)
	if err != nil {
		reportError(analyzer, err)
		return 1
	}
	cfg.Username = username

	if forget {
		if resolver.Store == nil {
			fmt.Fprintln(os.Stderr, "Error: OS keyring unavailable")
			return 1
		}
		if err := keys.Forget(cfg.Account()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Forgot stored credentials for %s\n", cfg.Account())
		return 0
	}

	creds, err := resolver.Resolve(username, cfg.Account(), cfg.TOTP)
	if err != nil {
		reportError(analyzer, err)
		return 1
	}
	state := bridge.NewState(creds)
	defer state.Wipe()

	slog.Info("starting ovpn-authbridge",
		slog.String("version", Version),
		slog.String("socket", cfg.Socket),
		slog.String("user", username),
		slog.Bool("two_factor", state.TwoFactor()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := realclock.New()

	var recorder bridge.Recorder
	if cfg.Transcript.Path != "" {
		rec, err := transcript.NewRecorder(cfg.Transcript.Path, cfg.Socket, fsys, clock)
		if err != nil {
			slog.Warn("transcript disabled", slog.String("error", err.Error()))
		} else {
			defer rec.Close()
			recorder = rec
			slog.Info("recording transcript", slog.String("path", rec.Path()))
		}
	}

	dialer := realnet.NewDialer()
	sup := supervisor.New(supervisor.Config{
		Network:      "unix",
		Address:      cfg.Socket,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		Factor:       cfg.Reconnect.Factor,
		Hint:         analyzer.Hint,
	}, dialer, clock)

	var b *bridge.Bridge
	b = bridge.New(ctx, state, bridge.Options{
		MaxFailures:    cfg.Auth.MaxFailures,
		SuccessTimeout: cfg.Auth.SuccessTimeout,
		Clock:          clock,
		Transcript:     recorder,
		Filter:         filter,
		Connect: func() {
			go sup.Run(b.Context(), func(ctx context.Context, conn net.Conn) error {
				return b.ServeManagement(ctx, conn)
			})
		},
	})
	if filter.Active() {
		slog.Info("operator command filter enabled")
	}

	// Set up config hot-reload if a config file was loaded
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
			if debug {
				newCfg.Logging.Level = "debug"
			}
			logging.SetLevel(newCfg.Logging.Level)
			slog.Info("logging level reloaded", slog.String("level", logging.Level().String()))

			newFilter, err := security.NewCommandFilter(newCfg.Security.CommandBlocklist, newCfg.Security.CommandAllowlist)
			if err != nil {
				slog.Warn("failed to update command filter, keeping previous", slog.String("error", err.Error()))
				return
			}
			b.SetFilter(newFilter)
			slog.Info("command filter reloaded", slog.Bool("active", newFilter.Active()))
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", slog.String("error", err.Error()))
		} else {
			defer watcher.Close()
			slog.Info("config hot-reload enabled", slog.String("path", configPath))
		}
	}

	// Operator control: a unix socket when configured, stdio otherwise.
	if cfg.ControlSocket != "" {
		ln, err := listenControl(cfg.ControlSocket, realnet.NewListener(), dialer)
		if err != nil {
			slog.Error("failed to listen for control clients", slog.String("error", err.Error()))
			return 1
		}
		defer ln.Close()
		slog.Info("waiting for control clients", slog.String("path", cfg.ControlSocket))
		go func() {
			if err := b.ServeControlListener(b.Context(), ln); err != nil {
				b.Fail(err)
			}
		}()
	} else {
		go func() {
			if err := b.ServeControl(b.Context(), os.Stdin, os.Stdout); err != nil && b.Context().Err() == nil {
				slog.Warn("control stream failed", slog.String("error", err.Error()))
			}
		}()
	}

	<-b.Done()
	if err := b.Err(); err != nil {
		reportError(analyzer, err)
		return 1
	}
	slog.Info("received shutdown signal")
	return 0
}

// reportError prints err and any recovery hints to stderr.
func reportError(analyzer *recovery.Analyzer, err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	for _, s := range analyzer.Analyze(err) {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", s.Problem, s.Hint)
	}
}

// listenControl listens on a unix socket, replacing a stale socket file
// left behind by a previous run. A socket that still accepts connections
// belongs to a running instance and is left alone.
func listenControl(path string, listener ports.NetworkListener, dialer ports.NetworkDialer) (net.Listener, error) {
	ln, err := listener.Listen("unix", path)
	if err == nil {
		return ln, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	conn, dialErr := dialer.Dial(context.Background(), "unix", path)
	if dialErr == nil {
		conn.Close()
		return nil, fmt.Errorf("control socket %s is in use by another instance", path)
	}

	slog.Info("removing stale control socket", slog.String("path", path))
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove stale control socket: %w", err)
	}
	return listener.Listen("unix", path)
}
