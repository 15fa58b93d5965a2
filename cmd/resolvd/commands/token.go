package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/resolvd/internal/cli/credentials"
	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/api/auth"
	"github.com/marmos91/resolvd/pkg/config"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenScope   string
	tokenTTL     time.Duration
	tokenSave    bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an RPC bearer token",
	Long: `Mint a bearer token signed with the RPC auth secret of the configuration.

Read tokens allow lookups, searches and exports. Write tokens additionally
allow record and data source changes.

Examples:
  # Print a read token valid for the configured duration
  resolvd token --subject reporting

  # Store a write token in the current client context
  resolvd token --scope write --ttl 1h --save`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", currentUser(), "Token subject")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", string(auth.ScopeRead), "Token scope (read|write)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: rpc.auth.token_duration)")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "Store the token in the current client context")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if !cfg.RPC.Auth.Enabled {
		PrintErr("Warning: rpc.auth.enabled is false; the server will not check this token")
	}

	svc, err := auth.NewService(auth.Config{
		Secret:        cfg.RPC.Auth.GetSecret(),
		Issuer:        cfg.RPC.Auth.Issuer,
		TokenDuration: cfg.RPC.Auth.TokenDuration,
	})
	if err != nil {
		return fmt.Errorf("cannot mint tokens: %w", err)
	}

	tok, err := svc.Issue(tokenSubject, auth.Scope(tokenScope), tokenTTL)
	if err != nil {
		return err
	}

	if tokenSave {
		if err := saveToken(cfg, tok); err != nil {
			return err
		}
		PrintErr("Token saved to the current client context")
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		return nil
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(tok)
}

// saveToken stores tok in the current context, creating a "default" context
// pointing at the configured ports when there is none.
func saveToken(cfg *config.Config, tok *auth.Token) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if _, err := store.GetCurrentContext(); errors.Is(err, credentials.ErrNoCurrentContext) {
		err = store.SetContext("default", &credentials.Context{
			RPCAddr:  fmt.Sprintf("localhost:%d", cfg.RPC.Port),
			AdminURL: fmt.Sprintf("http://localhost:%d", cfg.API.Port),
		})
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return store.UpdateToken(tok.Token, tok.ExpiresAt)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "resolvd"
}
