package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joostmulder/AuditPro/internal/gateway"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/joostmulder/AuditPro/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "session",
	Short:   "Sign in to the AuditPro web service",
	Long: `Sign in with your AuditPro email and password.

On a terminal you are prompted for anything not given as a flag. Otherwise
the password is read from the first line of stdin:

  echo "$PASSWORD" | auditpro login --email dana@example.com`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")

		var password string
		switch {
		case ui.IsTerminal(os.Stdin):
			var err error
			email, password, err = ui.PromptCredentials(email)
			if err != nil {
				fatalf("%v", err)
			}
		case email == "":
			fatalf("--email is required when stdin is not a terminal")
		default:
			var err error
			password, err = ui.ReadSecret(os.Stdin)
			if err != nil {
				fatalf("%v", err)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.API.Timeout)
		defer cancel()
		client := newGateway()

		token, err := client.Login(ctx, email, password)
		if err != nil {
			fatalf("%s", gateway.Message(err))
		}
		user, err := client.FetchCurrentUser(ctx, token)
		if err != nil {
			fatalf("%s", gateway.Message(err))
		}
		sess, err := session.Begin(cfg.Data.Dir, token, user)
		if err != nil {
			fatalf("failed to save session: %v", err)
		}

		fmt.Printf("%s Signed in as %s (%s)\n", ui.RenderPass("✓"), user.FullName(), sess.User.ClientName)
		if sess.CatalogSyncRequired(tables.SchemaVersion) {
			fmt.Printf("   Run 'auditpro sync' to load the stores you can audit\n")
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "session",
	Short:   "Sign out and forget the saved session",
	Long: `Sign out. Audits stay in the local database and are uploaded the next
time the same user signs in and syncs.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := session.End(cfg.Data.Dir); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

// statusReport is the machine-readable form of 'auditpro status'.
type statusReport struct {
	SignedIn            bool       `json:"signed_in" yaml:"signed_in"`
	User                string     `json:"user,omitempty" yaml:"user,omitempty"`
	Email               string     `json:"email,omitempty" yaml:"email,omitempty"`
	Client              string     `json:"client,omitempty" yaml:"client,omitempty"`
	OpenAudit           string     `json:"open_audit,omitempty" yaml:"open_audit,omitempty"`
	PendingUploads      int        `json:"pending_uploads" yaml:"pending_uploads"`
	Stores              int        `json:"stores" yaml:"stores"`
	Products            int        `json:"products" yaml:"products"`
	CatalogSyncedAt     *time.Time `json:"catalog_synced_at,omitempty" yaml:"catalog_synced_at,omitempty"`
	CatalogSyncRequired bool       `json:"catalog_sync_required" yaml:"catalog_sync_required"`
	Database            string     `json:"database" yaml:"database"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "session",
	Short:   "Show the signed-in user, pending uploads and catalog state",
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		ctx := cmd.Context()

		db := openDB(ctx)
		defer db.Close()

		report := statusReport{Database: cfg.DBPath()}
		stores, products, err := newCatalogRepo(db).Counts(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		report.Stores, report.Products = stores, products

		if sess := loadSession(); sess != nil {
			report.SignedIn = true
			report.User = sess.User.FullName()
			report.Email = sess.User.Email
			report.Client = sess.User.ClientName
			report.CatalogSyncRequired = sess.CatalogSyncRequired(tables.SchemaVersion)
			if !sess.CatalogSyncedAt.IsZero() {
				at := sess.CatalogSyncedAt
				report.CatalogSyncedAt = &at
			}

			repo := newAuditRepo(db, sess)
			if report.PendingUploads, err = repo.CountAudits(ctx, sess.User.ID, true); err != nil {
				fatalf("%v", err)
			}
			open, err := repo.ResumeAudit(ctx, sess.User.ID)
			if err != nil {
				fatalf("%v", err)
			}
			if open != nil {
				report.OpenAudit = fmt.Sprintf("%s (%s)", open.StoreDescription, open.ID)
			}
		}

		switch strings.ToLower(output) {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				fatalf("%v", err)
			}
			enc.Close()
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fatalf("%v", err)
			}
		default:
			printStatus(report)
		}
	},
}

func printStatus(r statusReport) {
	fmt.Printf("\n%s\n\n", ui.RenderHeader("AuditPro Status"))
	if !r.SignedIn {
		fmt.Printf("%s Not signed in. Run 'auditpro login'.\n", ui.RenderWarn("⚠"))
	} else {
		fmt.Printf("User:     %s <%s>\n", r.User, r.Email)
		fmt.Printf("Client:   %s\n", r.Client)
		if r.OpenAudit != "" {
			fmt.Printf("Open:     %s\n", r.OpenAudit)
		}
		fmt.Printf("Pending:  %d audit(s) to upload\n", r.PendingUploads)
	}
	fmt.Printf("Catalog:  %d stores, %d products\n", r.Stores, r.Products)
	if r.CatalogSyncedAt != nil {
		fmt.Printf("Synced:   %s\n", r.CatalogSyncedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if r.SignedIn && r.CatalogSyncRequired {
		fmt.Printf("%s Catalog needs a sync before auditing\n", ui.RenderWarn("⚠"))
	}
	fmt.Printf("Database: %s\n\n", ui.RenderMuted(r.Database))
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")
	statusCmd.Flags().StringP("output", "o", "text", "output format (text, yaml, json)")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}
