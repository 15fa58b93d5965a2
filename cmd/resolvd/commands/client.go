package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/resolvd/internal/cli/credentials"
	"github.com/marmos91/resolvd/internal/cli/output"
	"github.com/marmos91/resolvd/pkg/api/rpc"
	"github.com/marmos91/resolvd/pkg/apiclient"
	"github.com/spf13/cobra"
)

const (
	defaultRPCAddr  = "localhost:7060"
	defaultAdminURL = "http://localhost:7061"

	// envToken supplies the bearer token when --token is not given.
	envToken = "RESOLVD_TOKEN"
)

var (
	rpcAddr      string
	adminURL     string
	token        string
	contextName  string
	outputFormat string
)

func addClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&rpcAddr, "rpc", "", "RPC server address (default: current context or "+defaultRPCAddr+")")
	flags.StringVar(&adminURL, "admin", "", "Admin API URL (default: current context or "+defaultAdminURL+")")
	flags.StringVar(&token, "token", "", "Bearer token (default: $"+envToken+" or current context)")
	flags.StringVar(&contextName, "context", "", "Client context to use instead of the current one")
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
}

// target is the server resolved from flags, environment and the contexts
// file, in that order.
type target struct {
	rpcAddr  string
	adminURL string
	token    string
}

func resolveTarget() (target, error) {
	t := target{rpcAddr: rpcAddr, adminURL: adminURL, token: token}
	if t.token == "" {
		t.token = os.Getenv(envToken)
	}

	stored, err := storedContext()
	if err != nil {
		return t, err
	}
	if stored != nil {
		if t.rpcAddr == "" {
			t.rpcAddr = stored.RPCAddr
		}
		if t.adminURL == "" {
			t.adminURL = stored.AdminURL
		}
		if t.token == "" && stored.Token != "" {
			if stored.IsExpired() {
				PrintErr("Warning: token of the current context has expired; run 'resolvd token --save'")
			}
			t.token = stored.Token
		}
	}

	if t.rpcAddr == "" {
		t.rpcAddr = defaultRPCAddr
	}
	if t.adminURL == "" {
		t.adminURL = defaultAdminURL
	}
	t.adminURL = strings.TrimRight(t.adminURL, "/")
	return t, nil
}

// storedContext returns the selected context, or nil when none is
// configured and --context was not given.
func storedContext() (*credentials.Context, error) {
	store, err := credentials.NewStore()
	if err != nil {
		return nil, err
	}
	if contextName != "" {
		return store.GetContext(contextName)
	}
	ctx, err := store.GetCurrentContext()
	if errors.Is(err, credentials.ErrNoCurrentContext) || errors.Is(err, credentials.ErrContextNotFound) {
		return nil, nil
	}
	return ctx, err
}

func dialRPC() (*rpc.Client, error) {
	t, err := resolveTarget()
	if err != nil {
		return nil, err
	}
	var opts []rpc.DialOption
	if t.token != "" {
		opts = append(opts, rpc.WithToken(t.token))
	}
	client, err := rpc.Dial(t.rpcAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.rpcAddr, err)
	}
	return client, nil
}

func adminClient() (*apiclient.Client, error) {
	t, err := resolveTarget()
	if err != nil {
		return nil, err
	}
	return apiclient.New(t.adminURL), nil
}

func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, isTerminal()), nil
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
