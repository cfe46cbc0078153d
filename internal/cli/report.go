package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/domain"
)

func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Print the receipt view of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				transactionID, err := parseID("transaction id", args[0])
				if err != nil {
					return err
				}
				details, err := s.svc.GetTransactionDetails(cmd.Context(), transactionID)
				if err != nil {
					return err
				}
				return s.out.Success(details, func(w io.Writer) { renderDetails(w, details) })
			})
		},
	}
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeID int64
		returns bool
		actorID int64
	)

	cmd := &cobra.Command{
		Use:   "history --store <id>",
		Short: "List a store's transactions, or its return records with --returns",
		Long: `List a store's transactions oldest first. With --returns, list return
records instead; those are restricted to Admin employees, so --as must name
one. --store 0 with --returns lists every store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				if returns {
					return listReturns(cmd, s, storeID, actorID)
				}
				history, err := s.svc.ListTransactions(cmd.Context(), storeID)
				if err != nil {
					return err
				}
				return s.out.Success(history, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tDATE\tEMPLOYEE\tKIND\tTOTAL")
					for _, d := range history {
						kind := "sale"
						if d.IsReturn {
							kind = "return"
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.TransactionID, d.Date.Format("2006-01-02 15:04"), d.EmployeeName, kind, d.Total.StringFixed(2))
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store id")
	cmd.Flags().BoolVar(&returns, "returns", false, "list return records instead of transactions")
	cmd.Flags().Int64Var(&actorID, "as", 0, "admin employee id, required with --returns")

	return cmd
}

func listReturns(cmd *cobra.Command, s *session, storeID int64, actorID int64) error {
	ctx := cmd.Context()
	if err := auth.NewGuard(s.gateway).RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	records, err := s.svc.ListReturnRecords(ctx, storeID)
	if err != nil {
		return err
	}
	return s.out.Success(records, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTRANSACTION\tORIGINAL\tSTORE\tEMPLOYEE\tREFUND")
		for _, r := range records {
			original := "-"
			if r.OriginalTransactionID != nil {
				original = fmt.Sprint(*r.OriginalTransactionID)
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%s\n", r.ID, r.TransactionID, original, r.StoreID, r.EmployeeID, r.TotalRefund.StringFixed(2))
		}
		tw.Flush()
	})
}

func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID int64

	cmd := &cobra.Command{
		Use:   "summary --store <id>",
		Short: "Total a store's sales, refunds and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				summary, err := s.svc.StoreSalesSummary(cmd.Context(), storeID)
				if err != nil {
					return err
				}
				return s.out.Success(summary, func(w io.Writer) {
					fmt.Fprintf(w, "%s (#%d)\n", summary.StoreName, summary.StoreID)
					fmt.Fprintf(w, "purchases %d, returns %d\n", summary.Purchases, summary.Returns)
					fmt.Fprintf(w, "gross  %s\n", summary.GrossSales.StringFixed(2))
					fmt.Fprintf(w, "refund %s\n", summary.Refunds.StringFixed(2))
					fmt.Fprintf(w, "net    %s\n", summary.NetSales.StringFixed(2))
					fmt.Fprintf(w, "balance %s\n", summary.StoreBalance.StringFixed(2))
				})
			})
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store id")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func renderDetails(w io.Writer, d domain.TransactionDetails) {
	kind := "Sale"
	if d.IsReturn {
		kind = "Return"
	}
	fmt.Fprintf(w, "%s #%d  %s\n", kind, d.TransactionID, d.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "%s, served by %s\n", d.StoreName, d.EmployeeName)
	if d.OriginalTransactionID != nil {
		fmt.Fprintf(w, "reverses #%d\n", *d.OriginalTransactionID)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range d.PartsSold {
		fmt.Fprintf(tw, "  %s\t%d x %s\t%s\n", p.Name, p.Quantity, p.UnitPrice.StringFixed(2), p.TotalPrice.StringFixed(2))
	}
	tw.Flush()
	fmt.Fprintf(w, "subtotal %s\n", d.Subtotal.StringFixed(2))
	if d.DiscountName != "" {
		fmt.Fprintf(w, "%s -%s\n", d.DiscountName, d.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(w, "tax (%s) %s\n", d.TaxRate.String(), d.Tax.StringFixed(2))
	fmt.Fprintf(w, "total %s\n", d.Total.StringFixed(2))
}
