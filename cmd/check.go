package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-authgate/internal/flow"
	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

var (
	checkUser    string
	checkRequest string
	checkFlow    bool
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run staged end-to-end diagnostics",
		Long: `Run the diagnostics stages in order and report each one:

  1. transports      which auth methods each MCP transport supports
  2. secrets         resolve the service tokens of --user through the chain
                     and validate them where the service has a validate_url
  3. authentication  authenticate MCP_AUTHGATE_TOKEN or MCP_AUTHGATE_API_KEY
  4. connections     list the tools of every service the caller can reach
  5. flow            run the multi-service flow (with --flow)

Stages that need input that was not given are skipped.`,
		RunE: runCheck,
	}
	cmd.Flags().StringVar(&checkUser, "user", "", "User ID whose stored tokens to resolve")
	cmd.Flags().BoolVar(&checkFlow, "flow", false, "Also run the multi-service flow")
	cmd.Flags().StringVar(&checkRequest, "request", "search for LangGraph examples", "Request used for the flow stage")
	return cmd
}

// checker runs the stages and counts failures
type checker struct {
	logger   *logging.Logger
	out      io.Writer
	failures int
}

func (c *checker) stage(n int, name string) {
	fmt.Fprintf(c.out, "\n[%d] %s\n", n, name)
}

func (c *checker) fail(format string, args ...interface{}) {
	c.failures++
	c.logger.Error(format, args...)
}

func printTransportMatrix(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSPORT\tHEADER\tENV\tNONE")
	for _, t := range []string{gateway.TransportStreamableHTTP, gateway.TransportSSE, gateway.TransportStdio} {
		fmt.Fprintf(tw, "%s\t%v\t%v\t%v\n", t,
			gateway.SupportsAuth(t, gateway.AuthHeader),
			gateway.SupportsAuth(t, gateway.AuthEnv),
			gateway.SupportsAuth(t, gateway.AuthNone))
	}
	_ = tw.Flush()
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := newLogger()
	c := &checker{logger: logger, out: cmd.OutOrStdout()}

	rt, err := buildRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	logger.Info("Secret chain: %v", rt.chain.Backends())
	logger.Info("Services: %v", rt.catalog.Names())

	c.stage(1, "transports")
	printTransportMatrix(c.out)

	c.stage(2, "secrets")
	if checkUser == "" {
		logger.Info("Skipped, no --user given")
	} else {
		tokens := rt.chain.Resolve(ctx, checkUser, rt.catalog.Names())
		for _, svc := range rt.catalog.Names() {
			if !tokens.Has(svc) {
				logger.Warning("%s: no token", svc)
				continue
			}
			err := gateway.ValidateToken(ctx, nil, rt.catalog.Catalog()[svc], tokens.Token(svc))
			switch {
			case err == nil:
				logger.Success("%s: %s (valid)", svc, logging.Redact(tokens.Token(svc)))
			case errors.Is(err, gateway.ErrNoValidateURL):
				logger.Success("%s: %s", svc, logging.Redact(tokens.Token(svc)))
			default:
				c.fail("%s: %v", svc, err)
			}
		}
		if len(tokens) == 0 {
			c.fail("No tokens found for %s", checkUser)
		}
	}

	c.stage(3, "authentication")
	headers := credentialHeaders()
	if len(headers) == 0 {
		logger.Info("Skipped, set MCP_AUTHGATE_TOKEN or MCP_AUTHGATE_API_KEY")
		return c.result()
	}
	user, err := rt.auth.Authenticate(ctx, headers)
	if err != nil {
		c.fail("Authentication failed: %v", err)
		return c.result()
	}
	logger.Success("Authenticated %s (%s) via %s", user.Identity.ID, user.Identity.Email, user.Credential)

	sess := rt.factory.NewSession(user)
	defer sess.Close()

	c.stage(4, "connections")
	available := sess.AvailableServices()
	if len(available) == 0 {
		logger.Warning("No services available to %s", user.Identity.ID)
	}
	for _, svc := range available {
		tools, err := sess.ListTools(ctx, svc)
		if err != nil {
			c.fail("%s: %v", svc, err)
			continue
		}
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		logger.Success("%s: %d tools (%s)", svc, len(tools), strings.Join(names, ", "))
	}

	c.stage(5, "flow")
	if !checkFlow {
		logger.Info("Skipped, pass --flow to run it")
		return c.result()
	}
	state, err := flow.NewGraph(logger).Run(ctx, sess, checkRequest)
	if err != nil {
		c.fail("Flow failed: %v", err)
		return c.result()
	}
	for _, msg := range state.Messages {
		fmt.Fprintf(c.out, "  %s\n", msg)
	}
	for _, e := range state.Errors {
		c.fail("%s", e)
	}
	return c.result()
}

func (c *checker) result() error {
	if c.failures > 0 {
		return fmt.Errorf("%d check(s) failed", c.failures)
	}
	c.logger.Success("All checks passed")
	return nil
}
