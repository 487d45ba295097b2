package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/sales"
)

// SaleOptions holds flags for the sale subcommands.
type SaleOptions struct {
	*RootOptions
	Items    []string
	Customer string
	Payment  string
	Date     string
	Since    string
	Limit    int
	TopLimit int
}

// NewSaleCommand creates the sale command group.
func NewSaleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Record and inspect sales",
	}
	cmd.AddCommand(newSaleRecordCommand(opts))
	cmd.AddCommand(newSaleListCommand(opts))
	cmd.AddCommand(newSaleShowCommand(opts))
	cmd.AddCommand(newSaleUpdateCommand(opts))
	cmd.AddCommand(newSaleDeleteCommand(opts))
	cmd.AddCommand(newSaleTopCommand(opts))
	cmd.AddCommand(newSaleTotalsCommand(opts))
	return cmd
}

func newSaleRecordCommand(opts *SaleOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a sale and decrement stock",
		Long: `Record a sale with one or more line items.

Each --item is PRODUCT_ID:QUANTITY or PRODUCT_ID:QUANTITY:UNIT_PRICE. Without
a unit price the product's current price is used. The whole sale is
rejected, and nothing changes, if any item fails validation or stock.

Examples:
  stockbook sale record --item 3:2
  stockbook sale record --item 3:2 --item 7:1:9.50 --customer Ana --payment on_credit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordSale(opts, cmd)
		},
	}
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "line item PRODUCT_ID:QUANTITY[:UNIT_PRICE] (repeatable)")
	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&opts.Payment, "payment", "", "payment type (paid_in_full|on_credit)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "sale date (default now)")
	return cmd
}

func recordSale(opts *SaleOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	specs, err := parseItems(opts.Items)
	if err != nil {
		return err
	}
	payment, err := sales.ParsePaymentType(opts.Payment)
	if err != nil {
		// The recorder reports it, in its place among the other checks.
		payment = sales.PaymentType(opts.Payment)
	}
	in := sales.SaleInput{CustomerName: opts.Customer, PaymentType: payment}
	if opts.Date != "" {
		if in.Date, err = parseDate("date", opts.Date); err != nil {
			return err
		}
	}

	cat := opts.app.Catalog()
	for _, spec := range specs {
		li := sales.LineItemInput{ProductID: spec.ProductID, Quantity: spec.Quantity}
		if spec.UnitPrice != nil {
			li.UnitPrice = *spec.UnitPrice
		} else {
			p, err := cat.GetProduct(ctx, spec.ProductID)
			switch {
			case err == nil:
				li.UnitPrice = p.Price
			case !apperr.Is(err, apperr.CodeNotFound):
				return err
			}
			// A missing product is left for the recorder to report, after
			// the checks that come before it.
		}
		in.Items = append(in.Items, li)
	}

	receipt, err := opts.app.Sales().Record(ctx, in)
	if err != nil {
		return err
	}

	fmtr, err := opts.app.Money()
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Render(receipt, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Sale %d recorded: %s (%d items)\n",
			receipt.SaleID, fmtr.Format(receipt.Total), receipt.ItemsRecorded)
	})
}

func newSaleListCommand(opts *SaleOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f sales.ListFilter
			if opts.Since != "" {
				since, err := parseDate("since", opts.Since)
				if err != nil {
					return err
				}
				f.Since = since
			}
			f.Limit = opts.Limit

			list, err := opts.app.Sales().List(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmtr, err := opts.app.Money()
			if err != nil {
				return err
			}
			if list == nil {
				list = []sales.Sale{}
			}
			return opts.formatter(cmd).Render(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No sales found.")
					return
				}
				for _, s := range list {
					fmt.Fprintf(w, "%5d  %s  %-12s  %12s  %s\n",
						s.ID, s.Date, s.PaymentType, fmtr.Format(s.Total), orDash(s.CustomerName))
				}
			})
		},
	}
	cmd.Flags().StringVar(&opts.Since, "since", "", "only sales on or after this date")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of sales (0 = all)")
	return cmd
}

func newSaleShowCommand(opts *SaleOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <sale-id>",
		Short: "Show a sale with its line items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("sale", args[0])
			if err != nil {
				return err
			}
			d, err := opts.app.Sales().Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmtr, err := opts.app.Money()
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(d, func(w io.Writer) {
				fmt.Fprintf(w, "Sale %d\n", d.ID)
				fmt.Fprintf(w, "  Date:     %s\n", d.Date)
				fmt.Fprintf(w, "  Customer: %s\n", orDash(d.CustomerName))
				fmt.Fprintf(w, "  Payment:  %s\n", d.PaymentType)
				fmt.Fprintf(w, "  Total:    %s\n", fmtr.Format(d.Total))
				fmt.Fprintln(w)
				fmt.Fprintln(w, "=== Items ===")
				for _, li := range d.Items {
					fmt.Fprintf(w, "  %3d x %-30s %10s  %10s\n",
						li.Quantity, li.NameSnapshot, fmtr.Format(li.UnitPrice), fmtr.Format(li.Subtotal))
				}
			})
		},
	}
}

func newSaleUpdateCommand(opts *SaleOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <sale-id>",
		Short: "Edit a sale's date, customer or payment type",
		Long: `Edit the header of a recorded sale. Line items and the total cannot be
changed; delete and re-record the sale instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("sale", args[0])
			if err != nil {
				return err
			}
			rec := opts.app.Sales()
			cur, err := rec.Get(ctx, id)
			if err != nil {
				return err
			}

			u := sales.HeaderUpdate{
				Date:         cur.Date.Time,
				CustomerName: cur.CustomerName,
				PaymentType:  cur.PaymentType,
			}
			if cmd.Flags().Changed("date") {
				if u.Date, err = parseDate("date", opts.Date); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("customer") {
				u.CustomerName = opts.Customer
			}
			if cmd.Flags().Changed("payment") {
				if u.PaymentType, err = sales.ParsePaymentType(opts.Payment); err != nil {
					return err
				}
			}

			sale, err := rec.UpdateHeader(ctx, id, u)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(sale, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Sale %d updated\n", sale.ID)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&opts.Payment, "payment", "", "payment type (paid_in_full|on_credit)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "sale date")
	return cmd
}

func newSaleDeleteCommand(opts *SaleOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sale-id>",
		Short: "Delete a sale and its line items",
		Long: `Delete a sale and its line items. Stock is not given back; adjust it with
"product update --stock" if the goods returned to the shelf.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("sale", args[0])
			if err != nil {
				return err
			}
			if err := opts.app.Sales().Delete(cmd.Context(), id); err != nil {
				return err
			}
			return opts.formatter(cmd).Render(map[string]int64{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Sale %d deleted\n", id)
			})
		},
	}
}

func newSaleTopCommand(opts *SaleOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Best-selling products by revenue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			top, err := opts.app.Sales().TopProducts(cmd.Context(), opts.TopLimit)
			if err != nil {
				return err
			}
			fmtr, err := opts.app.Money()
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(top, func(w io.Writer) {
				if len(top) == 0 {
					fmt.Fprintln(w, "No sales yet.")
					return
				}
				for i, pt := range top {
					fmt.Fprintf(w, "%2d. %-30s %5d  %12s\n", i+1, pt.Name, pt.Quantity, fmtr.Format(pt.Revenue))
				}
			})
		},
	}
	cmd.Flags().IntVar(&opts.TopLimit, "limit", sales.DefaultTopLimit, "number of products")
	return cmd
}

func newSaleTotalsCommand(opts *SaleOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Sales totals for today and the last 30 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := opts.app.Sales().Summary(cmd.Context())
			if err != nil {
				return err
			}
			fmtr, err := opts.app.Money()
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(summary, func(w io.Writer) {
				fmt.Fprintf(w, "Today:        %s (%d sales)\n", fmtr.Format(summary.Today.Amount), summary.Today.Count)
				fmt.Fprintf(w, "Last 30 days: %s (%d sales)\n", fmtr.Format(summary.Last30Days.Amount), summary.Last30Days.Count)
			})
		},
	}
}
