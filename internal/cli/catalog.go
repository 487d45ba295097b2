package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/media"
)

// ProductOptions holds flags for the product subcommands.
type ProductOptions struct {
	*RootOptions
	Name       string
	Price      string
	Stock      int64
	CategoryID int64
	Image      string
	All        bool
}

// NewProductCommand creates the product command group.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the product catalog",
	}
	cmd.AddCommand(newProductAddCommand(opts))
	cmd.AddCommand(newProductListCommand(opts))
	cmd.AddCommand(newProductUpdateCommand(opts))
	cmd.AddCommand(newProductDeleteCommand(opts))
	return cmd
}

func productFlags(cmd *cobra.Command, opts *ProductOptions) {
	cmd.Flags().StringVar(&opts.Name, "name", "", "product name")
	cmd.Flags().StringVar(&opts.Price, "price", "", "unit price, e.g. 12.50")
	cmd.Flags().Int64Var(&opts.Stock, "stock", 0, "units in stock")
	cmd.Flags().Int64Var(&opts.CategoryID, "category", 0, "category id (0 = none)")
	cmd.Flags().StringVar(&opts.Image, "image", "", "image file to attach (png, jpg, jpeg, webp)")
}

func newProductAddCommand(opts *ProductOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Long: `Add a product to the catalog.

Examples:
  stockbook product add --name Lipstick --price 12.50 --stock 10
  stockbook product add --name Liner --price 4 --stock 5 --category 2 --image liner.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parseAmount("price", opts.Price)
			if err != nil {
				return err
			}
			in := catalog.ProductInput{Name: opts.Name, Stock: opts.Stock, Price: price}
			if opts.CategoryID != 0 {
				id := opts.CategoryID
				in.CategoryID = &id
			}
			if opts.Image != "" {
				path, err := importImage(opts.RootOptions, media.KindProduct, opts.Image)
				if err != nil {
					return err
				}
				in.ImagePath = &path
			}

			p, err := opts.app.Catalog().CreateProduct(cmd.Context(), in)
			if err != nil {
				if in.ImagePath != nil {
					_ = opts.app.Media().Remove(*in.ImagePath)
				}
				return err
			}
			return opts.formatter(cmd).Render(p, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Product %d added: %s\n", p.ID, p.Name)
			})
		},
	}
	productFlags(cmd, opts)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newProductListCommand(opts *ProductOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.Catalog().ListProducts(cmd.Context(), opts.All)
			if err != nil {
				return err
			}
			fmtr, err := opts.app.Money()
			if err != nil {
				return err
			}
			if list == nil {
				list = []catalog.Product{}
			}
			return opts.formatter(cmd).Render(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No products.")
					return
				}
				for _, p := range list {
					status := ""
					if !p.Active {
						status = "  (discontinued)"
					}
					fmt.Fprintf(w, "%5d  %-30s %5d  %10s%s\n", p.ID, p.Name, p.Stock, fmtr.Format(p.Price), status)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "include discontinued products")
	return cmd
}

func newProductUpdateCommand(opts *ProductOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <product-id>",
		Short: "Change a product's fields",
		Long: `Change the given fields of a product; others keep their value.
Setting --stock is an inventory adjustment and cannot go below zero.
--category 0 removes the category.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("product", args[0])
			if err != nil {
				return err
			}
			cat := opts.app.Catalog()
			cur, err := cat.GetProduct(ctx, id)
			if err != nil {
				return err
			}

			in := catalog.ProductInput{
				Name:       cur.Name,
				CategoryID: cur.CategoryID,
				ImagePath:  cur.ImagePath,
				Thumbnail:  cur.Thumbnail,
				Stock:      cur.Stock,
				Price:      cur.Price,
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name = opts.Name
			}
			if flags.Changed("price") {
				if in.Price, err = parseAmount("price", opts.Price); err != nil {
					return err
				}
			}
			if flags.Changed("stock") {
				in.Stock = opts.Stock
			}
			if flags.Changed("category") {
				in.CategoryID = nil
				if opts.CategoryID != 0 {
					cid := opts.CategoryID
					in.CategoryID = &cid
				}
			}
			var oldImage *string
			if opts.Image != "" {
				path, err := importImage(opts.RootOptions, media.KindProduct, opts.Image)
				if err != nil {
					return err
				}
				oldImage, in.ImagePath, in.Thumbnail = cur.ImagePath, &path, nil
			}

			p, err := cat.UpdateProduct(ctx, id, in)
			if err != nil {
				if opts.Image != "" {
					_ = opts.app.Media().Remove(*in.ImagePath)
				}
				return err
			}
			if oldImage != nil {
				if err := opts.app.Media().Remove(*oldImage); err != nil {
					opts.formatter(cmd).VerboseLog("could not remove old image: %v", err)
				}
			}
			return opts.formatter(cmd).Render(p, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Product %d updated\n", p.ID)
			})
		},
	}
	productFlags(cmd, opts)
	return cmd
}

func newProductDeleteCommand(opts *ProductOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product",
		Long: `Delete a product. A product that appears in recorded sales is only
marked discontinued, so sale history keeps resolving.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product", args[0])
			if err != nil {
				return err
			}
			res, err := opts.app.Catalog().DeleteProduct(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(res, func(w io.Writer) {
				if res.Deactivated {
					fmt.Fprintf(w, "✓ Product %d has sales; marked discontinued\n", id)
					return
				}
				fmt.Fprintf(w, "✓ Product %d deleted\n", id)
			})
		},
	}
}

// importImage copies src into the media directory. An unsupported file type
// is a validation error; anything else is IO.
func importImage(opts *RootOptions, kind media.Kind, src string) (string, error) {
	path, err := opts.app.Media().Import(kind, src)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, media.ErrUnsupportedExtension):
		return "", &apperr.Error{Code: apperr.CodeValidation, Message: "image " + src, Err: err}
	default:
		return "", apperr.IO("image "+src, err)
	}
}

// NewCategoryCommand creates the category command group.
func NewCategoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage product categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.app.Catalog().CreateCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(c, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Category %d added: %s\n", c.ID, c.Name)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.Catalog().ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			if list == nil {
				list = []catalog.Category{}
			}
			return opts.formatter(cmd).Render(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No categories.")
					return
				}
				for _, c := range list {
					fmt.Fprintf(w, "%5d  %s\n", c.ID, c.Name)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <category-id> <name>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("category", args[0])
			if err != nil {
				return err
			}
			c, err := opts.app.Catalog().RenameCategory(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(c, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Category %d renamed to %s\n", c.ID, c.Name)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <category-id>",
		Short: "Delete a category",
		Long: `Delete a category. With the nullify policy (default) its products lose
the category; with restrict the delete is refused while products use it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("category", args[0])
			if err != nil {
				return err
			}
			res, err := opts.app.Catalog().DeleteCategory(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Category %d deleted (%d products detached)\n", id, res.Detached)
			})
		},
	})

	return cmd
}

// ProfileOptions holds flags for profile set.
type ProfileOptions struct {
	*RootOptions
	Name  string
	Role  string
	Photo string
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or set the shop owner's profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.app.Catalog().GetProfile(cmd.Context())
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Render(p, func(w io.Writer) {
				if p == nil {
					fmt.Fprintln(w, "No profile set.")
					return
				}
				fmt.Fprintf(w, "Name:  %s\n", p.Name)
				fmt.Fprintf(w, "Role:  %s\n", p.Role)
				fmt.Fprintf(w, "Photo: %s\n", derefOr(p.PhotoPath, "-"))
			})
		},
	})

	set := &cobra.Command{
		Use:   "set",
		Short: "Create or replace the profile",
		Long: `Create or replace the profile. Without --photo the current photo is kept.

Example:
  stockbook profile set --name "Ana Ruiz" --role Owner --photo me.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := catalog.Profile{Name: opts.Name, Role: opts.Role}
			if opts.Photo != "" {
				path, err := importImage(opts.RootOptions, media.KindProfile, opts.Photo)
				if err != nil {
					return err
				}
				p.PhotoPath = &path
			}
			saved, err := opts.app.Catalog().SaveProfile(cmd.Context(), p)
			if err != nil {
				if p.PhotoPath != nil {
					_ = opts.app.Media().Remove(*p.PhotoPath)
				}
				return err
			}
			return opts.formatter(cmd).Render(saved, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Profile saved: %s (%s)\n", saved.Name, saved.Role)
			})
		},
	}
	set.Flags().StringVar(&opts.Name, "name", "", "owner name")
	set.Flags().StringVar(&opts.Role, "role", "", "owner role")
	set.Flags().StringVar(&opts.Photo, "photo", "", "photo file (png, jpg, jpeg, webp)")
	cmd.AddCommand(set)

	return cmd
}
