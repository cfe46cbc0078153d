package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

func NewPurchaseCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeID    int64
		employeeID int64
		discountID int64
		lines      []string
	)

	cmd := &cobra.Command{
		Use:   "purchase --store <id> --employee <id> --line <pno>:<qty>...",
		Short: "Record a sale",
		Long: `Record a sale. Lines naming the same part are merged. Tax is the store's
current rate, applied after the optional discount.

Example:
  posctl purchase --store 1 --employee 2 --line 1:3 --line 3:2 --discount 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				parsed, err := parseLines(lines)
				if err != nil {
					return err
				}
				req := domain.PurchaseRequest{StoreID: storeID, EmployeeID: employeeID, Lines: parsed}
				if discountID != 0 {
					req.DiscountID = &discountID
				}
				result, err := s.svc.CreatePurchase(cmd.Context(), req)
				if err != nil {
					return err
				}
				return s.out.Success(result, func(w io.Writer) { renderResult(w, "purchase", result) })
			})
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store id")
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "employee ringing up the sale")
	cmd.Flags().Int64Var(&discountID, "discount", 0, "discount id to apply")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "part and quantity as <pno>:<qty>, repeatable")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func NewReturnCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		storeID    int64
		employeeID int64
		lines      []string
	)

	cmd := &cobra.Command{
		Use:   "return --store <id> --employee <id> --line <pno>:<qty>...",
		Short: "Refund parts at their current price, without tax",
		Long: `Refund parts that are not tied to a recorded sale. Each line is refunded
at the part's current price and no tax is added. Requires an Admin employee.

Example:
  posctl return --store 1 --employee 1 --line 2:1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				parsed, err := parseLines(lines)
				if err != nil {
					return err
				}
				result, err := s.svc.CreateReturn(cmd.Context(), domain.ReturnRequest{
					StoreID:    storeID,
					EmployeeID: employeeID,
					Lines:      parsed,
				})
				if err != nil {
					return err
				}
				return s.out.Success(result, func(w io.Writer) { renderResult(w, "return", result) })
			})
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store id")
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "admin employee processing the return")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "part and quantity as <pno>:<qty>, repeatable")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("line")

	return cmd
}

func NewReturnTransactionCommand(rootOpts *RootOptions) *cobra.Command {
	var employeeID int64

	cmd := &cobra.Command{
		Use:   "return-tx <transaction-id> --employee <id>",
		Short: "Reverse a recorded sale at its sold prices plus current tax",
		Long: `Reverse every line of a recorded sale. Lines are refunded at the price they
sold for and the store's current tax rate is added. A sale can be reversed
once. Requires an Admin employee.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				transactionID, err := parseID("transaction id", args[0])
				if err != nil {
					return err
				}
				result, err := s.svc.ReturnByTransaction(cmd.Context(), transactionID, employeeID)
				if err != nil {
					return err
				}
				return s.out.Success(result, func(w io.Writer) { renderResult(w, "return", result) })
			})
		},
	}

	cmd.Flags().Int64Var(&employeeID, "employee", 0, "admin employee processing the return")
	_ = cmd.MarkFlagRequired("employee")

	return cmd
}

// parseLines reads repeated <pno>:<qty> flags.
func parseLines(raw []string) ([]domain.LineRequest, error) {
	lines := make([]domain.LineRequest, 0, len(raw))
	for _, item := range raw {
		pno, qty, ok := strings.Cut(item, ":")
		if !ok {
			return nil, store.InvalidInput("line %q must be <pno>:<qty>", item)
		}
		partID, err := parseID("part number", pno)
		if err != nil {
			return nil, err
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil {
			return nil, store.InvalidInput("line %q: quantity %q is not a number", item, qty)
		}
		lines = append(lines, domain.LineRequest{PartID: partID, Quantity: quantity})
	}
	return lines, nil
}

func parseID(name string, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.InvalidInput("%s %q must be a positive integer", name, raw)
	}
	return id, nil
}

func renderResult(w io.Writer, kind string, result domain.TransactionResult) {
	t := result.Transaction
	fmt.Fprintf(w, "%s #%d at store %d by employee %d\n", kind, t.ID, t.StoreID, t.EmployeeID)
	for _, line := range t.Lines {
		fmt.Fprintf(w, "  pno %-6d qty %-4d @ %s\n", line.PartID, line.Quantity, line.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "subtotal %s\n", result.Subtotal.StringFixed(2))
	if !result.Discount.IsZero() {
		fmt.Fprintf(w, "discount %s\n", result.Discount.StringFixed(2))
	}
	fmt.Fprintf(w, "tax      %s\n", result.Tax.StringFixed(2))
	fmt.Fprintf(w, "total    %s\n", result.Total.StringFixed(2))
	fmt.Fprintf(w, "balance  %s\n", result.StoreBalance.StringFixed(2))
	if result.ReturnRecord != nil {
		fmt.Fprintf(w, "return record #%d\n", result.ReturnRecord.ID)
	}
}
