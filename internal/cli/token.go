package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/kitties/internal/auth"
	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/spf13/cobra"
)

type TokenOptions struct {
	*RootOptions
	Secret string
	Issuer string
	TTL    time.Duration
}

// NewTokenCommand signs a development token with the server's shared secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Sign a bearer token for a principal",
		Long: `Sign a bearer token for a principal using the server's shared secret.

Example:
  kittyctl token alice --secret "$AUTH_JWT_SECRET"`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := domain.ParsePrincipal(args[0])
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(config.Config{
				AuthJWTSecret: opts.Secret,
				AuthJWTIssuer: opts.Issuer,
				AuthTokenTTL:  opts.TTL,
			}, clock.New())
			if err != nil {
				return err
			}
			token, err := tokens.Issue(principal, opts.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", envOr("AUTH_JWT_ISSUER", "kitties"), "token issuer")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
