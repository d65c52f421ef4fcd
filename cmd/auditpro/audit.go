package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/audit"
	"github.com/joostmulder/AuditPro/internal/daemon"
	"github.com/joostmulder/AuditPro/internal/export"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/joostmulder/AuditPro/internal/ui"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:     "audit",
	GroupID: "audit",
	Short:   "Start, complete and inspect store audits",
}

var auditStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an audit of a store",
	Long: `Start an audit of a store from the downloaded catalog.

Only one audit may be open at a time; complete or delete the open audit
before starting another.`,
	Run: func(cmd *cobra.Command, args []string) {
		storeID, _ := cmd.Flags().GetInt64("store")
		ctx := cmd.Context()

		sess := requireSession()
		if sess.CatalogSyncRequired(tables.SchemaVersion) {
			fatalf("the store catalog is out of date; run 'auditpro sync' first")
		}

		db := openDB(ctx)
		defer db.Close()

		st, err := newCatalogRepo(db).GetStore(ctx, storeID)
		if err != nil {
			fatalf("%v", err)
		}
		if st == nil {
			fatalf("store %d is not in the catalog", storeID)
		}

		params := model.StartParams{
			UserID:           sess.User.ID,
			StoreID:          st.ID,
			StoreDescription: st.Description(),
			AuditTypeID:      model.AuditTypeStandard,
			Latitude:         floatFlag(cmd, "lat"),
			Longitude:        floatFlag(cmd, "lon"),
		}
		a, err := newAuditRepo(db, sess).StartAudit(ctx, params)
		if err != nil {
			if audit.IsAuditOpen(err) {
				fatalf("%v\nUse 'auditpro audit resume' to continue it", err)
			}
			fatalf("%v", err)
		}

		fmt.Printf("%s Started audit of %s\n", ui.RenderPass("✓"), a.StoreDescription)
		fmt.Printf("   ID: %s\n", a.ID)
	},
}

var auditResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Show the open audit",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()

		repo := newAuditRepo(db, sess)
		a, err := repo.ResumeAudit(ctx, sess.User.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if a == nil {
			fmt.Println("No open audit")
			return
		}

		scans, err := repo.GetScans(ctx, *a)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s\n", ui.RenderAccent("●"), ui.RenderBold(a.StoreDescription))
		fmt.Printf("   ID:      %s\n", a.ID)
		fmt.Printf("   Started: %s\n", a.StartedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("   Scans:   %d\n", len(scans))
	},
}

var auditCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the open audit",
	Long: `Complete the open audit. The end time defaults to now; --at accepts a
timestamp or a phrase such as "10 minutes ago" or "today at 3pm".

A completed audit keeps its end time and is uploaded on the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		requestSync, _ := cmd.Flags().GetBool("sync")
		ctx := cmd.Context()

		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		a := openAudit(ctx, repo, sess)

		end := time.Now()
		if at != "" {
			var err error
			if end, err = parseWhen(at, end); err != nil {
				fatalf("%v", err)
			}
		}
		if end.Before(a.StartedAt) {
			fatalf("end time %s is before the audit started", end.Format(time.RFC3339))
		}

		settings := sess.Settings()
		if !settings.NoNotesWarning() {
			notes, err := repo.GetNotes(ctx, a)
			if err == nil && notes.Empty() {
				fmt.Printf("%s This audit has no notes\n", ui.RenderWarn("⚠"))
			}
		}

		done, err := repo.CompleteAudit(ctx, a, floatFlag(cmd, "lat"), floatFlag(cmd, "lon"), end)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Completed audit of %s (%s)\n", ui.RenderPass("✓"), done.StoreDescription, done.Duration().Round(time.Second))

		if requestSync {
			if err := daemon.RequestSync(cfg.Data.Dir); err != nil {
				fatalf("failed to request sync: %v", err)
			}
			fmt.Printf("   Sync requested\n")
		}
	},
}

var auditReopenCmd = &cobra.Command{
	Use:   "reopen <audit-id>",
	Short: "Reopen a completed audit that has not been uploaded",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		a := auditByID(ctx, repo, args[0])
		reopened, err := repo.ReopenAudit(ctx, a)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Reopened audit of %s\n", ui.RenderPass("✓"), reopened.StoreDescription)
	},
}

var auditDeleteCmd = &cobra.Command{
	Use:   "delete [audit-id]",
	Short: "Delete an audit and everything recorded in it",
	Long: `Delete an audit with its scans, reports, conditions and notes. Without an
id the open audit is deleted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		a := selectAudit(ctx, repo, sess, args)
		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				fatalf("refusing to delete without --yes")
			}
			ok, err := ui.Confirm(fmt.Sprintf("Delete the audit of %s?", a.StoreDescription))
			if err != nil {
				fatalf("%v", err)
			}
			if !ok {
				fmt.Println("Canceled")
				return
			}
		}

		if err := repo.DeleteAudit(ctx, a); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted audit of %s\n", ui.RenderPass("✓"), a.StoreDescription)
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the open audit and audits waiting for upload",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		var rows [][]string
		open, err := repo.ResumeAudit(ctx, sess.User.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if open != nil {
			rows = append(rows, auditRow(*open))
		}
		done, err := repo.CompletedAudits(ctx, sess.User.ID)
		if err != nil {
			fatalf("%v", err)
		}
		for _, a := range done {
			rows = append(rows, auditRow(a))
		}

		if len(rows) == 0 {
			fmt.Println("No audits")
			return
		}
		fmt.Println(ui.Table([]string{"ID", "Store", "Started", "Ended", "State"}, rows))
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export [audit-id]",
	Short: "Export an audit to a spreadsheet",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		a := selectAudit(ctx, repo, sess, args)
		products, err := newCatalogRepo(db).GetProductsForStore(ctx, a.StoreID)
		if err != nil {
			fatalf("%v", err)
		}
		if out == "" {
			out = fmt.Sprintf("audit-%s.xlsx", a.ID.String()[:8])
		}
		if err := export.SaveAs(ctx, repo, a, products, out); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), out)
	},
}

var auditReceiptCmd = &cobra.Command{
	Use:   "receipt [audit-id]",
	Short: "Print the receipt of an audit",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)

		a := selectAudit(ctx, repo, sess, args)
		products, err := newCatalogRepo(db).GetProductsForStore(ctx, a.StoreID)
		if err != nil {
			fatalf("%v", err)
		}
		receipt, err := repo.BuildReceipt(ctx, a, products)
		if err != nil {
			fatalf("%v", err)
		}
		if receipt.Empty() {
			fmt.Println("Nothing to print")
			return
		}
		for _, line := range receipt.Lines() {
			fmt.Println(line)
		}
	},
}

func auditRow(a model.Audit) []string {
	ended, state := "", "open"
	if a.EndedAt != nil {
		ended = a.EndedAt.Local().Format("2006-01-02 15:04")
		state = "completed"
	}
	return []string{
		a.ID.String()[:8],
		a.StoreDescription,
		a.StartedAt.Local().Format("2006-01-02 15:04"),
		ended,
		state,
	}
}

// openAudit returns the open audit or exits.
func openAudit(ctx context.Context, repo *audit.Repository, sess *session.Session) model.Audit {
	a, err := repo.ResumeAudit(ctx, sess.User.ID)
	if err != nil {
		fatalf("%v", err)
	}
	if a == nil {
		fatalf("no open audit; run 'auditpro audit start' first")
	}
	return *a
}

func auditByID(ctx context.Context, repo *audit.Repository, arg string) model.Audit {
	id, err := uuid.Parse(arg)
	if err != nil {
		fatalf("invalid audit id %q", arg)
	}
	a, err := repo.GetAudit(ctx, id)
	if err != nil {
		fatalf("%v", err)
	}
	if a == nil {
		fatalf("audit %s not found", id)
	}
	return *a
}

// selectAudit resolves the optional audit-id argument, defaulting to the
// open audit.
func selectAudit(ctx context.Context, repo *audit.Repository, sess *session.Session, args []string) model.Audit {
	if len(args) == 0 {
		return openAudit(ctx, repo, sess)
	}
	return auditByID(ctx, repo, args[0])
}

// parseWhen reads an RFC 3339 timestamp or a natural language time relative
// to base.
func parseWhen(text string, base time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", text, err)
	}
	if r == nil || strings.TrimSpace(r.Text) == "" {
		return time.Time{}, fmt.Errorf("unrecognized time %q", text)
	}
	return r.Time, nil
}

// floatFlag returns the flag value, or nil when it was not given.
func floatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		fatalf("%v", err)
	}
	return &v
}

func init() {
	auditStartCmd.Flags().Int64("store", 0, "store id from 'auditpro catalog stores'")
	_ = auditStartCmd.MarkFlagRequired("store")
	for _, c := range []*cobra.Command{auditStartCmd, auditCompleteCmd} {
		c.Flags().Float64("lat", 0, "current latitude")
		c.Flags().Float64("lon", 0, "current longitude")
	}
	auditCompleteCmd.Flags().String("at", "", "end time (RFC 3339 or natural language)")
	auditCompleteCmd.Flags().Bool("sync", false, "ask a running daemon to upload right away")
	auditDeleteCmd.Flags().BoolP("yes", "y", false, "delete without asking")
	auditExportCmd.Flags().StringP("output", "o", "", "spreadsheet path (default audit-<id>.xlsx)")

	auditCmd.AddCommand(auditStartCmd, auditResumeCmd, auditCompleteCmd, auditReopenCmd,
		auditDeleteCmd, auditListCmd, auditExportCmd, auditReceiptCmd)
	rootCmd.AddCommand(auditCmd)
}
