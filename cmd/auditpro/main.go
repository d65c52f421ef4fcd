// Command auditpro is the field client for AuditPro store audits: it records
// audits in a local database and synchronizes them with the web service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joostmulder/AuditPro/internal/audit"
	"github.com/joostmulder/AuditPro/internal/catalog"
	"github.com/joostmulder/AuditPro/internal/config"
	"github.com/joostmulder/AuditPro/internal/gateway"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	v          = config.NewViper()
	configFile string

	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "auditpro",
	Short: "AuditPro field client",
	Long: `Record store audits offline and synchronize them with AuditPro.

Log in once, sync to download the stores and products you may audit, then
start an audit, record scans and reorder statuses, and complete it. Completed
audits are uploaded on the next sync.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			fatalf("%v", err)
		}
		logger, logCloser, err = cfg.NewLogger(os.Stderr)
		if err != nil {
			fatalf("%v", err)
		}
		logrus.SetLevel(logger.GetLevel())
		logrus.SetFormatter(logger.Formatter)
		logrus.SetOutput(logger.Out)
		if err := cfg.EnsureDataDir(); err != nil {
			fatalf("%v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "audit", Title: "Audits:"},
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ~/.auditpro/config.yaml)")
	flags.String("data-dir", "", "directory holding the session and audit database")
	flags.String("api-url", "", "web service base URL")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-file", "", "write logs to a rotating file instead of stderr")

	for key, flag := range map[string]string{
		"data.dir":     "data-dir",
		"api.base_url": "api-url",
		"log.level":    "log-level",
		"log.format":   "log-format",
		"log.file":     "log-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	if logCloser != nil {
		logCloser.Close()
	}
	os.Exit(1)
}

func component(name string) logrus.FieldLogger {
	return logger.WithField("component", name)
}

// openDB opens the audit database, creating or upgrading it as needed.
func openDB(ctx context.Context) *store.DB {
	scfg := store.DefaultConfig()
	scfg.Logger = component("store")
	db, err := tables.Open(ctx, cfg.DBPath(), scfg)
	if err != nil {
		fatalf("failed to open audit database: %v", err)
	}
	return db
}

// loadSession returns the saved session or nil when logged out.
func loadSession() *session.Session {
	sess, err := session.Load(cfg.Data.Dir)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil
		}
		fatalf("failed to load session: %v", err)
	}
	return sess
}

// requireSession returns the saved session or exits asking for a login.
func requireSession() *session.Session {
	sess := loadSession()
	if sess == nil {
		fatalf("not logged in; run 'auditpro login' first")
	}
	return sess
}

func newAuditRepo(db *store.DB, sess *session.Session) *audit.Repository {
	acfg := audit.DefaultConfig()
	acfg.Logger = component("audit")
	return audit.NewWithConfig(db, sess, acfg)
}

func newCatalogRepo(db *store.DB) *catalog.Repository {
	ccfg := catalog.DefaultConfig()
	ccfg.Logger = component("catalog")
	return catalog.NewWithConfig(db, ccfg)
}

func newGateway() *gateway.Client {
	client, err := gateway.NewWithConfig(&gateway.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Logger:  component("gateway"),
	})
	if err != nil {
		fatalf("%v", err)
	}
	return client
}
