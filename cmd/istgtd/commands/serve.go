package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/piscisaureus/istgt/internal/acceptor"
	"github.com/piscisaureus/istgt/internal/cliconfig"
	"github.com/piscisaureus/istgt/internal/config"
	"github.com/piscisaureus/istgt/internal/connection"
	"github.com/piscisaureus/istgt/internal/httpapi"
	"github.com/piscisaureus/istgt/internal/logger"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/netutil"
	"github.com/piscisaureus/istgt/internal/runtime"
	"github.com/piscisaureus/istgt/internal/tracing"
)

var serveFlags = viper.New()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the iSCSI target daemon",
	Long: `Start istgtd, listening on every Portal configured in the §6
configuration file's PortalGroup sections. SIGINT/SIGTERM trigger graceful
shutdown: the acceptor stops taking new connections, logged-in sessions are
given ShutdownTimeout to drain, then backing stores are synced and the
process exits.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("config", "", "path to the §6 configuration file")
	f.Bool("foreground", false, "run in the foreground (no daemonization)")
	f.String("log-level", "", "override log level (DEBUG, INFO, WARN, ERROR)")
	f.String("log-format", "", "override log format (text, json)")
	f.String("metrics-addr", "", "operator HTTP bind address (empty disables it)")
	f.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	f.Bool("tracing", false, "export connection/task/backing-store spans to stdout")

	_ = serveFlags.BindPFlag("config_path", f.Lookup("config"))
	_ = serveFlags.BindPFlag("foreground", f.Lookup("foreground"))
	_ = serveFlags.BindPFlag("log_level", f.Lookup("log-level"))
	_ = serveFlags.BindPFlag("log_format", f.Lookup("log-format"))
	_ = serveFlags.BindPFlag("metrics_addr", f.Lookup("metrics-addr"))
	_ = serveFlags.BindPFlag("shutdown_timeout", f.Lookup("shutdown-timeout"))
	_ = serveFlags.BindPFlag("tracing_enabled", f.Lookup("tracing"))
}

func runServe(cmd *cobra.Command, args []string) error {
	daemonCfg, err := cliconfig.Load(serveFlags)
	if err != nil {
		return err
	}
	if daemonCfg.ConfigPath == "" {
		return fmt.Errorf("--config is required (or set ISTGTD_CONFIG_PATH)")
	}

	if err := logger.Init(logger.Config{Level: daemonCfg.LogLevel, Format: daemonCfg.LogFormat}); err != nil {
		return err
	}

	shutdownTracing, err := tracing.Init(daemonCfg.TracingEnabled)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	tree, err := config.ParseFile(daemonCfg.ConfigPath)
	if err != nil {
		return err
	}
	built, err := config.Build(tree)
	if err != nil {
		return err
	}

	rt := runtime.New()
	rt.Targets = built.Targets
	rt.ACL = built.ACL
	rt.PortalGroups = built.PortalGroups

	for _, g := range built.PortalGroups {
		if err := g.ListenAll(); err != nil {
			return err
		}
		for _, p := range g.Portals {
			logger.Info("listening", "portal_group", g.Tag, "addr", p.Addr())
		}
	}

	rt.Start()
	defer rt.Shutdown()

	acc := acceptor.New(built.PortalGroups)

	var cidCounter atomic.Uint32
	var wg sync.WaitGroup

	maxRecvSegLen := uint32(tree.MaxRecvDataSegmentLength())
	commandWindow := uint32(tree.QueueDepth())
	timeout := time.Duration(tree.Timeout()) * time.Second
	nopInterval := time.Duration(tree.NopInInterval()) * time.Second

	onAccept := func(acc acceptor.Accepted) {
		if err := netutil.TuneAccepted(acc.Conn, maxRecvSegLen); err != nil {
			logger.Warn("socket tuning failed", "error", err)
		}
		authRequired, authGroup := authPolicyForPortal(built.Targets, acc.PortalTag)
		cfg := connection.Config{
			PortalTag:     acc.PortalTag,
			Timeout:       timeout,
			NopInInterval: nopInterval,
			AuthRequired:  authRequired,
			AuthGroup:     authGroup,
			LookupSecret:  built.Secrets.Lookup,
			CommandWindow: commandWindow,
		}
		cid := uint16(cidCounter.Add(1))
		conn := connection.New(acc.Conn, cid, cfg, rt, rt.Sessions)
		rt.Metrics().IncActiveConnections()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer rt.Metrics().DecActiveConnections()
			conn.Serve(rt.Context())
		}()
	}

	done := make(chan struct{})
	var acceptWG sync.WaitGroup
	acceptWG.Add(1)
	go func() {
		defer acceptWG.Done()
		acc.Serve(done, onAccept)
	}()

	var httpSrv *http.Server
	if daemonCfg.MetricsAddr != "" {
		httpSrv = &http.Server{
			Addr:    daemonCfg.MetricsAddr,
			Handler: httpapi.NewRouter(rt, rt.Ready, rt.Metrics()),
		}
		go func() {
			logger.Info("operator HTTP surface listening", "addr", daemonCfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("operator HTTP server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
	logger.Info("shutdown signal received, draining")

	acc.Wakeup(acceptor.Command{Op: acceptor.OpExit})
	acceptWG.Wait()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(ctx)
		cancel()
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(daemonCfg.ShutdownTimeout):
		logger.Warn("shutdown timeout elapsed with connections still draining")
	}

	for _, t := range rt.Targets.All() {
		for _, n := range t.LUNs() {
			if spec, ok := t.LUN(n); ok && spec.Driver != nil {
				if err := spec.Driver.Sync(0, spec.Size); err != nil {
					logger.Warn("backing store sync failed", "target", t.Name, "lun", n, "error", err)
				}
			}
		}
	}

	logger.Info("istgtd stopped")
	return nil
}

// authPolicyForPortal resolves the CHAP policy a freshly accepted
// connection should start login negotiation with, before any TargetName is
// known. It looks for the unique AuthGroup among targets reachable via
// portalTag; when multiple targets behind one portal disagree, the most
// restrictive (CHAP required) setting wins, since relaxing auth silently for
// a partial match would be worse than asking an unauthenticated initiator to
// authenticate once more than strictly necessary.
func authPolicyForPortal(targets *lu.Registry, portalTag int) (required bool, group int) {
	for _, t := range targets.All() {
		for _, m := range t.Mappings {
			if m.PortalGroupTag != portalTag {
				continue
			}
			if t.AuthRequired {
				return true, t.AuthGroup
			}
			if !required {
				group = t.AuthGroup
			}
		}
	}
	return required, group
}
