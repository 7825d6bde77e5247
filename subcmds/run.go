// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/orbtrader/alert"
	"github.com/bvk/orbtrader/api"
	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/config"
	"github.com/bvk/orbtrader/ctxutil"
	"github.com/bvk/orbtrader/daemonize"
	"github.com/bvk/orbtrader/engine"
	"github.com/bvk/orbtrader/fetcher"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/httputil"
	"github.com/bvk/orbtrader/journal"
	"github.com/bvk/orbtrader/marketdata"
	"github.com/bvk/orbtrader/metrics"
	"github.com/bvk/orbtrader/order"
	"github.com/bvk/orbtrader/pushover"
	"github.com/bvk/orbtrader/subcmds/cmdutil"
	"github.com/bvk/orbtrader/telegram"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/visvasity/cli"
)

type Run struct {
	cmdutil.ServerFlags

	configPath string
	dataDir    string

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof bool

	sampleInterval time.Duration
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.StringVar(&c.configPath, "config", "", "path to the yaml configuration file (default is orbtrader.yaml in the data directory)")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.BoolVar(&c.background, "background", false, "runs the session in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.DurationVar(&c.sampleInterval, "sample-interval", 30*time.Second, "interval for process metrics sampling")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs one opening range breakout trading session"
}

func (c *Run) Description() string {
	return `

Command "run" connects to the brokerage gateway, waits for the opening range
of the configured underlying to complete and trades the first breakout that
the gamma exposure analysis agrees with. The session ends when the position
is closed, when the gateway connection is lost or when the process receives
an interrupt.

Every bracket group and trading state change is kept in an in-memory
database for the lifetime of the session. Use the "journal" commands to
inspect them while the session is running.

`
}

// sessionGateway binds the gateway session to its connection settings.
type sessionGateway struct {
	*gateway.Session

	endpoint string
	creds    *gateway.Credentials
	timeout  time.Duration
}

func (g *sessionGateway) Connect(ctx context.Context) error {
	return g.Session.Connect(ctx, g.endpoint, g.creds, g.timeout)
}

func (c *Run) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(c.dataDir) == 0 {
		c.dataDir = filepath.Join(os.Getenv("HOME"), ".orbtrader")
	}
	if err := os.MkdirAll(c.dataDir, 0700); err != nil {
		return fmt.Errorf("could not create data directory %q: %w", c.dataDir, err)
	}
	dataDir, err := filepath.Abs(c.dataDir)
	if err != nil {
		return fmt.Errorf("could not determine data-dir %q absolute path: %w", c.dataDir, err)
	}

	if len(c.configPath) == 0 {
		c.configPath = filepath.Join(dataDir, "orbtrader.yaml")
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	creds, err := cfg.Credentials()
	if err != nil {
		return err
	}

	addr, err := c.ServerFlags.Address(cfg.HTTP.Listen)
	if err != nil {
		return err
	}

	if c.background {
		if addr == nil {
			return fmt.Errorf("background mode needs an http listen address: %w", os.ErrInvalid)
		}
		// Verify that the responding http server is our child and not an older
		// instance.
		check := func(ctx context.Context, child *os.Process) error {
			client := http.Client{Timeout: time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("http status: %d", resp.StatusCode)
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if pid := string(data); pid != fmt.Sprintf("%d", child.Pid) {
				return fmt.Errorf("is another instance already running? pid mismatch: want %d got %s", child.Pid, pid)
			}
			return nil
		}
		if err := daemonize.Daemonize(ctx, check); err != nil {
			return err
		}
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logFile := cfg.Logging.File
	if len(logFile) == 0 && daemonize.IsChild() {
		logFile = filepath.Join(dataDir, "orbtrader.log")
	}
	var logw io.Writer = os.Stderr
	if len(logFile) != 0 {
		fp, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		defer fp.Close()
		logw = fp
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logw, &slog.HandlerOptions{Level: level})))
	slog.Info("starting orbtrader", "data-dir", dataDir, "config", c.configPath, "pid", os.Getpid())

	lockPath := filepath.Join(dataDir, "orbtrader.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown", "pid", owner.Pid)
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Session state lives only as long as the process.
	dbopts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	bdb, err := badger.Open(dbopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)
	jnl := journal.New(db)

	go func() {
		if err := metrics.SampleProcess(ctx, c.sampleInterval); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("process sampling has stopped", "err", err)
		}
	}()

	// Trading components.
	sess, err := gateway.New(cfg.GatewayOptions())
	if err != nil {
		return err
	}
	defer sess.Close()

	fc, err := fetcher.New(sess, cfg.FetcherOptions())
	if err != nil {
		return err
	}
	md := marketdata.New(sess, fc, cfg.MarketDataOptions())

	provider, err := gex.New(cfg.GexOptions(), md)
	if err != nil {
		return err
	}

	bopts, err := cfg.BreakoutOptions()
	if err != nil {
		return err
	}
	signals, err := breakout.NewSource(breakout.FromSession(sess), bopts)
	if err != nil {
		return err
	}

	var notifiers alert.Multi
	var tgram *telegram.Client
	if p := cfg.Alerts.Pushover; p != nil {
		pc, err := pushover.New(&pushover.Keys{ApplicationKey: p.ApplicationKey, UserKey: p.UserKey})
		if err != nil {
			return err
		}
		notifiers = append(notifiers, pc)
	}
	if t := cfg.Alerts.Telegram; t != nil {
		secrets := &telegram.Secrets{BotToken: t.BotToken, OwnerID: t.OwnerID, AdminID: t.AdminID, OtherIDs: t.OtherIDs}
		tc, err := telegram.New(ctx, db, secrets)
		if err != nil {
			return err
		}
		defer tc.Close()
		tgram = tc
		notifiers = append(notifiers, tc)
	}

	oopts := cfg.OrderOptions()
	oopts.Journal = jnl
	oopts.GroupSeed = fmt.Sprintf("%s-%s", cfg.Instrument.Ticker, time.Now().Format(time.RFC3339))
	oopts.OnFault = func(err error) {
		if len(notifiers) == 0 {
			return
		}
		go func() {
			if err := notifiers.SendMessage(context.Background(), time.Now(), fmt.Sprintf("order fault: %v", err)); err != nil {
				slog.Warn("could not send order fault alert (ignored)", "err", err)
			}
		}()
	}
	slog.Info("bracket group ids are derived from the session seed", "seed", oopts.GroupSeed)

	mgr, err := order.New(sess, oopts)
	if err != nil {
		return err
	}
	defer mgr.Close()

	gw := &sessionGateway{
		Session:  sess,
		endpoint: cfg.Connection.Endpoint,
		creds:    creds,
		timeout:  cfg.Connection.ConnectTimeout,
	}
	eopts := cfg.EngineOptions()
	eopts.Journal = jnl
	eng, err := engine.New(gw, signals, provider, mgr, md, eopts)
	if err != nil {
		return err
	}
	defer eng.Close()

	startTime := time.Now()
	status := func() *api.StatusResponse {
		resp := &api.StatusResponse{
			PID:             os.Getpid(),
			StartTime:       startTime,
			State:           eng.State().String(),
			Connected:       sess.IsConnected(),
			PendingRequests: sess.Pending(),
			Groups:          mgr.Groups(),
		}
		if id, ok := eng.GroupID(); ok {
			resp.ActiveGroup = id.String()
		}
		return resp
	}

	if len(notifiers) != 0 {
		transitions, err := eng.Transitions()
		if err != nil {
			return err
		}
		defer transitions.Close()
		faults, err := sess.Faults()
		if err != nil {
			return err
		}
		defer faults.Close()

		go func() {
			if err := alert.Watch(ctx, notifiers, transitions, faults); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("alert watcher has stopped", "err", err)
			}
		}()
	}

	if tgram != nil {
		statusCmd := func(ctx context.Context, _ []string) error {
			resp := status()
			stdout := cli.Stdout(ctx)
			fmt.Fprintf(stdout, "State: %s\n", resp.State)
			fmt.Fprintf(stdout, "Connected: %t\n", resp.Connected)
			for _, g := range resp.Groups {
				fmt.Fprintf(stdout, "%s %s %s fill=%s tp=%s sl=%s\n", g.ID, g.Opening.Contract, g.State,
					g.Opening.FillPrice.StringFixed(2), g.TakeProfit.Price.StringFixed(2), g.StopLoss.Price.StringFixed(2))
			}
			return nil
		}
		if err := tgram.AddCommand(ctx, "status", "Prints the trading state", statusCmd); err != nil {
			return err
		}
	}

	// Start HTTP server.
	if addr != nil {
		s, err := httputil.New(&httputil.Options{ShutdownTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer s.Close()

		tcpServer, err := s.StartTCP(ctx, addr)
		if err != nil {
			return fmt.Errorf("could not start http server on %s: %w", addr, err)
		}
		defer s.Stop(tcpServer)

		if !c.noPprof {
			s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
			s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
			s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
			s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
		}
		s.AddHandler("/metrics", promhttp.Handler())
		s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))
		s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, fmt.Sprintf("%d", os.Getpid()))
		}))
		s.AddHandler(api.StatusPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(status()); err != nil {
				slog.Warn("could not encode status response", "err", err)
			}
		}))
		slog.Info("started http server", "addr", addr)
	}

	if err := eng.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("orbtrader is shutting down")
			return nil
		}
		return err
	}
	slog.Info("trading session has ended")
	return nil
}
