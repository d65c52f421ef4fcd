package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/daemon"
	"github.com/joostmulder/AuditPro/internal/dashboard"
	"github.com/joostmulder/AuditPro/internal/gateway"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/store"
	auditsync "github.com/joostmulder/AuditPro/internal/sync"
	"github.com/joostmulder/AuditPro/internal/ui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Upload completed audits and refresh the catalog",
	Long: `Upload every completed audit, oldest first, then download the stores and
products of your client. Uploaded audits are removed from this device.

The catalog is only replaced when both downloads succeed. Press Ctrl-C to
cancel; audits already accepted by the server stay removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db := openDB(ctx)
		defer db.Close()

		res := newPass(db, newGateway(), auditsync.ObserverFunc(printEvent))(ctx)
		switch {
		case res.OK():
			fmt.Printf("%s %s: %d uploaded, %d stores, %d products\n",
				ui.RenderPass("✓"), res.Message, res.Uploaded, res.Stores, res.Products)
		case res.State == auditsync.StateCanceled:
			fmt.Printf("%s %s (%d uploaded)\n", ui.RenderWarn("⚠"), res.Message, res.Uploaded)
			os.Exit(1)
		default:
			fatalf("%s", res.Message)
		}
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Synchronize in the background",
	Long: `Run sync passes in the foreground until interrupted: once at start, every
--interval, after a login, and whenever 'auditpro audit complete --sync'
asks for one. Only one daemon may serve a data directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db := openDB(ctx)
		defer db.Close()

		d := newDaemon(newPass(db, newGateway(), nil))
		if err := d.Start(ctx); err != nil {
			if errors.Is(err, daemon.ErrLocked) {
				fatalf("another daemon is already running for %s", cfg.Data.Dir)
			}
			fatalf("%v", err)
		}
		printDaemonStats(d.Stats())
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Run the daemon with a live WebSocket dashboard",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db := openDB(ctx)
		defer db.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: component("dashboard"),
		})
		handler := dashboard.NewHandler(server, nil)
		if err := server.Start(); err != nil {
			fatalf("%v", err)
		}
		defer server.Stop()
		fmt.Printf("%s Dashboard at http://%s\n", ui.RenderAccent("●"), server.Addr())

		stores, products, err := newCatalogRepo(db).Counts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		pending := 0
		if sess := loadSession(); sess != nil {
			if pending, err = newAuditRepo(db, sess).CountAudits(ctx, sess.User.ID, true); err != nil {
				fatalf("%v", err)
			}
		}
		handler.UpdateCounts(pending, stores, products)

		run := newPass(db, newGateway(), handler)
		d := newDaemon(func(ctx context.Context) auditsync.Result {
			res := run(ctx)
			handler.OnResult(res)
			return res
		})
		if err := d.Start(ctx); err != nil {
			if errors.Is(err, daemon.ErrLocked) {
				fatalf("another daemon is already running for %s", cfg.Data.Dir)
			}
			fatalf("%v", err)
		}
		printDaemonStats(d.Stats())
	},
}

// newPass returns a sync pass over db. The session is reloaded on every
// pass so a login or logout takes effect without a restart.
func newPass(db *store.DB, client *gateway.Client, observer auditsync.Observer) daemon.Pass {
	return func(ctx context.Context) auditsync.Result {
		sess, err := session.Load(cfg.Data.Dir)
		if err != nil && !errors.Is(err, session.ErrNoSession) {
			logger.WithError(err).Warn("failed to load session")
		}
		if err != nil {
			sess = nil
		}

		seq := auditsync.NewWithConfig(newAuditRepo(db, sess), newCatalogRepo(db), client, sess, &auditsync.Config{
			Logger:   component("sync"),
			Observer: observer,
		})
		res := seq.Run(ctx)

		entry := logger.WithFields(logrus.Fields{
			"state":    res.State,
			"uploaded": res.Uploaded,
			"pending":  res.Pending,
		})
		if res.FailedAudit != uuid.Nil {
			entry = entry.WithField("audit_id", res.FailedAudit)
		}
		if res.OK() {
			entry.Info(res.Message)
		} else {
			entry.WithError(res.Err).Warn(res.Message)
		}
		return res
	}
}

func newDaemon(pass daemon.Pass) *daemon.Daemon {
	dcfg := daemon.DefaultConfig()
	dcfg.Interval = cfg.Daemon.Interval
	dcfg.Debounce = cfg.Daemon.Debounce
	dcfg.Logger = component("daemon")
	d, err := daemon.NewWithConfig(cfg.Data.Dir, pass, dcfg)
	if err != nil {
		fatalf("%v", err)
	}
	return d
}

func printEvent(e auditsync.Event) {
	switch e.State {
	case auditsync.StateUploadingAudit:
		fmt.Printf("   Uploading audit %d of %d\n", e.Index+1, e.Total)
	case auditsync.StateFetchingStores:
		fmt.Printf("   Downloading stores\n")
	case auditsync.StateFetchingProducts:
		fmt.Printf("   Downloading products\n")
	case auditsync.StateApplyingCatalog:
		fmt.Printf("   Saving catalog\n")
	}
}

func printDaemonStats(s daemon.Stats) {
	fmt.Printf("\n%s Daemon stopped after %d pass(es), %d failed, %d audit(s) uploaded\n",
		ui.RenderAccent("●"), s.Passes, s.Failures, s.Uploaded)
	if s.LastError != "" {
		fmt.Printf("   Last error: %s\n", ui.RenderFail(s.LastError))
	}
}

func init() {
	rootCmd.AddCommand(syncCmd, daemonCmd, dashboardCmd)
}
