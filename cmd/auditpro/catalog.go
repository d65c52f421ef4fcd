package main

import (
	"fmt"
	"strconv"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/ui"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "audit",
	Short:   "Browse the downloaded stores and products",
}

var catalogStoresCmd = &cobra.Command{
	Use:   "stores",
	Short: "List the stores you can audit",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openDB(ctx)
		defer db.Close()

		stores, err := newCatalogRepo(db).GetStores(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if len(stores) == 0 {
			fmt.Println("No stores. Run 'auditpro sync' to download them.")
			return
		}

		rows := make([][]string, 0, len(stores))
		for _, s := range stores {
			last := ""
			if len(s.History) > 0 {
				last = s.History[0].LastAuditDate
			}
			rows = append(rows, []string{
				strconv.FormatInt(s.ID, 10),
				s.Description(),
				s.ChainName,
				s.Address,
				s.CityZip(),
				last,
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Store", "Chain", "Address", "City", "Last Audit"}, rows))
	},
}

var catalogProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the products carried at a store",
	Long: `List the products carried at a store. Without --store the store of the
open audit is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		storeID, _ := cmd.Flags().GetInt64("store")
		ctx := cmd.Context()
		db := openDB(ctx)
		defer db.Close()

		if storeID == 0 {
			sess := requireSession()
			storeID = openAudit(ctx, newAuditRepo(db, sess), sess).StoreID
		}

		products, err := newCatalogRepo(db).GetProductsForStore(ctx, storeID)
		if err != nil {
			fatalf("%v", err)
		}
		if len(products) == 0 {
			fmt.Printf("No products for store %d\n", storeID)
			return
		}

		rows := make([][]string, 0, len(products))
		for _, p := range products {
			rows = append(rows, []string{
				strconv.FormatInt(p.ID, 10),
				p.BrandName,
				p.ProductName,
				p.UPC,
				p.ReorderCode(),
				formatPrice(p.MSRP),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Brand", "Product", "UPC", "Reorder", "MSRP"}, rows))
	},
}

var catalogChainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chains of the downloaded stores",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openDB(ctx)
		defer db.Close()

		chains, err := newCatalogRepo(db).GetChains(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		rows := make([][]string, 0, len(chains))
		for _, c := range chains {
			rows = append(rows, chainRow(c))
		}
		fmt.Println(ui.Table([]string{"ID", "Chain", "Code"}, rows))
	},
}

func chainRow(c model.Chain) []string {
	return []string{strconv.FormatInt(c.ID, 10), c.Name, c.Code}
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *p)
}

func init() {
	catalogProductsCmd.Flags().Int64("store", 0, "store id")

	catalogCmd.AddCommand(catalogStoresCmd, catalogProductsCmd, catalogChainsCmd)
	rootCmd.AddCommand(catalogCmd)
}
