package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/seed"
)

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed --file <path>",
		Short: "Load stores, parts, employees and discounts from a YAML file",
		Long: `Load stores, parts, employees and discounts from a YAML file in one
unit of work. Rows name their store; stores already in the database can be
referenced but not redefined. Nothing is written if any row is rejected.

Example:
  posctl seed --file fixtures/stores.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				doc, err := seed.LoadFile(file)
				if err != nil {
					return err
				}
				summary, err := seed.Apply(cmd.Context(), s.gateway, doc)
				if err != nil {
					return err
				}
				return s.out.Success(summary, func(w io.Writer) {
					fmt.Fprintf(w, "seeded %d stores, %d parts, %d employees, %d discounts\n",
						summary.Stores, summary.Parts, summary.Employees, summary.Discounts)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed document (YAML)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func NewStoresCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List stores with balance and tax rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				stores, err := s.svc.ListStores(cmd.Context())
				if err != nil {
					return err
				}
				return s.out.Success(stores, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tBALANCE\tTAX RATE")
					for _, shop := range stores {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", shop.ID, shop.Name, shop.Balance.StringFixed(2), shop.TaxRate.String())
					}
					tw.Flush()
				})
			})
		},
	}
}

func NewPartsCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID int64

	cmd := &cobra.Command{
		Use:   "parts --store <id>",
		Short: "List a store's parts with price and quantity on hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.run(cmd, func(s *session) error {
				parts, err := s.svc.ListParts(cmd.Context(), storeID)
				if err != nil {
					return err
				}
				return s.out.Success(parts, func(w io.Writer) {
					renderParts(w, parts)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store id")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func renderParts(w io.Writer, parts []domain.Part) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PNO\tNAME\tPRICE\tQTY")
	for _, p := range parts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Quantity)
	}
	tw.Flush()
}
