package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/spf13/cobra"
)

type CreateOptions struct {
	*RootOptions
	Dna   string
	Price int64
}

func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a kitty owned by the token's principal",
		Long: `Create a kitty owned by the token's principal.

Example:
  kittyctl create --dna 0a0b --price 100`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dna, err := hex.DecodeString(opts.Dna)
			if err != nil {
				return fmt.Errorf("invalid --dna hex: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			kitty, err := opts.client().Create(ctx, dna, opts.Price)
			if err != nil {
				return err
			}
			return printKitty(cmd.OutOrStdout(), opts.Format, kitty)
		},
	}

	cmd.Flags().StringVar(&opts.Dna, "dna", "", "payload as hex")
	cmd.Flags().Int64Var(&opts.Price, "price", 0, "price in base units")

	return cmd
}

func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "transfer <id> <new-owner>",
		Short:        "Transfer a kitty to another principal",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseKittyID(args[0])
			if err != nil {
				return err
			}
			newOwner, err := domain.ParsePrincipal(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			if err := rootOpts.client().Transfer(ctx, id, newOwner); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "kitty %s transferred to %s\n", id, newOwner)
			return err
		},
	}
	return cmd
}

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "get <id>",
		Short:        "Show a kitty",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseKittyID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			kitty, err := rootOpts.client().Get(ctx, id)
			if err != nil {
				return err
			}
			return printKitty(cmd.OutOrStdout(), rootOpts.Format, kitty)
		},
	}
}

func NewOwnedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "owned <principal>",
		Short:        "List a principal's kitties in acquisition order",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := domain.ParsePrincipal(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			kitties, err := rootOpts.client().Owned(ctx, principal)
			if err != nil {
				return err
			}
			return printKittyList(cmd.OutOrStdout(), rootOpts.Format, kitties)
		},
	}
}
