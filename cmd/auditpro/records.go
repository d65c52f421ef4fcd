package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joostmulder/AuditPro/internal/audit"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/joostmulder/AuditPro/internal/ui"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:     "scan",
	GroupID: "audit",
	Short:   "Record product scans in the open audit",
}

var scanAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record the prices seen for a product",
	Long: `Record the prices seen for a product in the open audit. The product is
chosen by catalog id (--product) or barcode (--upc). Scanning a product
again replaces the earlier observation.

  auditpro scan add --upc 012345678905 --retail 3.49 --data 012345678905
  auditpro scan add --product 17 --retail 5.99 --sale 4.99`,
	Run: func(cmd *cobra.Command, args []string) {
		data, _ := cmd.Flags().GetString("data")
		ctx := cmd.Context()

		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)
		a := openAudit(ctx, repo, sess)
		p := productFor(ctx, cmd, db, a)

		var scanData *string
		if cmd.Flags().Changed("data") {
			scanData = &data
		}
		retail, sale := floatFlag(cmd, "retail"), floatFlag(cmd, "sale")
		if retail == nil && sale == nil {
			fatalf("give --retail, --sale or both")
		}

		now := time.Now()
		prev, err := repo.GetScan(ctx, a, p.ID)
		if err != nil {
			fatalf("%v", err)
		}

		var saved model.Scan
		switch {
		case prev == nil:
			saved = model.NewScan(a.ID, p, scanData, retail, sale, now)
			if err := repo.AddScan(ctx, saved); err != nil {
				fatalf("%v", err)
			}
		default:
			next := model.Rescan(*prev, scanData, retail, sale, now)
			if next == nil {
				fmt.Printf("%s %s unchanged\n", ui.RenderMuted("-"), p.ProductName)
				return
			}
			if err := repo.UpdateScan(ctx, *next); err != nil {
				fatalf("%v", err)
			}
			saved = *next
		}

		fmt.Printf("%s %s %s %s\n", ui.RenderPass("✓"), saved.ScanTypeID, p.BrandName, p.ProductName)

		if price := saved.DisplayPrice(); sess.Settings().ScanForcesInStock() && price != nil && p.InStockPrice(*price) {
			if _, err := setReport(ctx, repo, a, p, &saved, model.StatusInStock, now); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("   Marked %s\n", model.StatusInStock)
		}
	},
}

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "audit",
	Short:   "Record reorder statuses in the open audit",
}

var reportSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the reorder status of a product",
	Long: `Set the reorder status of a product in the open audit. Accepted statuses:
none, in-stock (I), out-of-stock (OOS), void (V).`,
	Run: func(cmd *cobra.Command, args []string) {
		statusArg, _ := cmd.Flags().GetString("status")
		ctx := cmd.Context()

		status, err := model.ParseReorderStatus(normalizeStatus(statusArg))
		if err != nil {
			fatalf("%v", err)
		}

		sess := requireSession()
		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)
		a := openAudit(ctx, repo, sess)
		p := productFor(ctx, cmd, db, a)

		scan, err := repo.GetScan(ctx, a, p.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if status == model.StatusInStock && scan == nil && sess.Settings().InStockRequiresScan() {
			fatalf("%s must be scanned before it can be marked %s", p.ProductName, status)
		}

		rep, err := setReport(ctx, repo, a, p, scan, status, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), p.ProductName, rep.ReorderStatusID)
	},
}

var notesCmd = &cobra.Command{
	Use:     "notes",
	GroupID: "audit",
	Short:   "Edit the notes of the open audit",
}

var notesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the audit notes",
	Run: func(cmd *cobra.Command, args []string) {
		text, _ := cmd.Flags().GetString("text")
		storeNote, _ := cmd.Flags().GetString("store-note")
		ctx := cmd.Context()

		sess := requireSession()
		if cmd.Flags().Changed("store-note") && !sess.Settings().AllowStoreNotes() {
			fatalf("store notes are not enabled for %s", sess.User.ClientName)
		}

		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)
		a := openAudit(ctx, repo, sess)

		notes, err := repo.GetNotes(ctx, a)
		if err != nil {
			fatalf("%v", err)
		}
		if !cmd.Flags().Changed("text") {
			text = notes.Contents
		}
		if !cmd.Flags().Changed("store-note") {
			storeNote = notes.Store
		}
		if msg := repo.UpdateNotes(ctx, &notes, text, storeNote); msg != "" {
			fatalf("%s", msg)
		}
		fmt.Printf("%s Notes saved\n", ui.RenderPass("✓"))
	},
}

var conditionsCmd = &cobra.Command{
	Use:     "conditions",
	GroupID: "audit",
	Short:   "Flag SKU conditions in the open audit",
}

var conditionsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the conditions flagged for a product",
	Long: `Replace the conditions flagged for a product. Pass no --condition to
clear them. Condition ids come from your client's setup:

  auditpro conditions set --product 17 --condition 2 --condition 5`,
	Run: func(cmd *cobra.Command, args []string) {
		ids, _ := cmd.Flags().GetIntSlice("condition")
		ctx := cmd.Context()

		sess := requireSession()
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			c, ok := sess.SKUCondition(id)
			if !ok {
				fatalf("unknown condition %d", id)
			}
			names = append(names, c.Name)
		}

		db := openDB(ctx)
		defer db.Close()
		repo := newAuditRepo(db, sess)
		a := openAudit(ctx, repo, sess)
		p := productFor(ctx, cmd, db, a)

		if err := repo.UpdateSelectedSKUConditions(ctx, a, p.ID, model.NewConditionSet(ids...)); err != nil {
			fatalf("%v", err)
		}
		if len(names) == 0 {
			fmt.Printf("%s Cleared conditions of %s\n", ui.RenderPass("✓"), p.ProductName)
			return
		}
		fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), p.ProductName, strings.Join(names, ", "))
	},
}

// setReport saves status for p, updating the existing report when there is
// one.
func setReport(ctx context.Context, repo *audit.Repository, a model.Audit, p model.Product, scan *model.Scan, status model.ReorderStatus, now time.Time) (model.ReportRecord, error) {
	existing, err := repo.GetReport(ctx, a, p.ID)
	if err != nil {
		return model.ReportRecord{}, err
	}
	rep := model.NewReportRecord(a.ID, p.ID, nil, status, now)
	if scan != nil {
		id := scan.ID
		rep.ScanID = &id
	}
	if existing != nil {
		rep.ID = existing.ID
		rep.CreatedAt = existing.CreatedAt
		if rep.ScanID == nil {
			rep.ScanID = existing.ScanID
		}
	}
	return repo.UpsertReport(ctx, rep)
}

// productFor resolves --product or --upc against the products of the
// audited store.
func productFor(ctx context.Context, cmd *cobra.Command, db *store.DB, a model.Audit) model.Product {
	id, _ := cmd.Flags().GetInt64("product")
	upc, _ := cmd.Flags().GetString("upc")
	if id == 0 && upc == "" {
		fatalf("give --product or --upc")
	}

	products, err := newCatalogRepo(db).GetProductsForStore(ctx, a.StoreID)
	if err != nil {
		fatalf("%v", err)
	}
	for _, p := range products {
		if (id != 0 && p.ID == id) || (upc != "" && p.UPC == upc) {
			return p
		}
	}
	if id != 0 {
		fatalf("product %d is not carried at %s", id, a.StoreDescription)
	}
	fatalf("no product with UPC %s at %s", upc, a.StoreDescription)
	return model.Product{}
}

// normalizeStatus lowercases a status and joins words with dashes, so
// "Out of Stock" and "out-of-stock" parse alike.
func normalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if strings.ToUpper(s) == s && len(s) <= 3 {
		return s
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func init() {
	for _, c := range []*cobra.Command{scanAddCmd, reportSetCmd, conditionsSetCmd} {
		c.Flags().Int64("product", 0, "catalog product id")
		c.Flags().String("upc", "", "product barcode")
	}
	scanAddCmd.Flags().Float64("retail", 0, "regular shelf price")
	scanAddCmd.Flags().Float64("sale", 0, "sale price")
	scanAddCmd.Flags().String("data", "", "raw barcode data; omit for a manual entry")
	reportSetCmd.Flags().StringP("status", "s", "", "reorder status")
	_ = reportSetCmd.MarkFlagRequired("status")
	notesSetCmd.Flags().StringP("text", "t", "", "internal notes")
	notesSetCmd.Flags().String("store-note", "", "note printed for the store")
	conditionsSetCmd.Flags().IntSlice("condition", nil, "condition id (repeatable)")

	scanCmd.AddCommand(scanAddCmd)
	reportCmd.AddCommand(reportSetCmd)
	notesCmd.AddCommand(notesSetCmd)
	conditionsCmd.AddCommand(conditionsSetCmd)
	rootCmd.AddCommand(scanCmd, reportCmd, notesCmd, conditionsCmd)
}
