// Package repl provides an interactive shell for exploring the downstream
// services a caller can reach through the permission gate.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/giantswarm/mcp-authgate/internal/flow"
	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// errExit is a sentinel error used to signal REPL exit
var errExit = errors.New("exit")

// Authenticator turns request headers into an authenticated user
type Authenticator interface {
	Authenticate(ctx context.Context, h http.Header) (*identity.AuthUser, error)
}

// Config configures a REPL
type Config struct {
	Auth    Authenticator
	Factory *gateway.Factory
	Graph   *flow.Graph
	Logger  *logging.Logger
	// Headers carry the caller's credential, e.g. Authorization or X-Api-Key
	Headers http.Header
	// Out defaults to os.Stdout
	Out io.Writer
}

// REPL represents the Read-Eval-Print Loop for gateway interaction
type REPL struct {
	auth    Authenticator
	factory *gateway.Factory
	graph   *flow.Graph
	logger  *logging.Logger
	headers http.Header
	out     io.Writer
	rl      *readline.Instance

	mu        sync.Mutex
	sess      *gateway.Session
	toolNames map[string][]string

	commandHandlers map[string]commandHandler
}

// New creates a new REPL instance
func New(cfg Config) *REPL {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	graph := cfg.Graph
	if graph == nil {
		graph = flow.NewGraph(cfg.Logger)
	}
	r := &REPL{
		auth:      cfg.Auth,
		factory:   cfg.Factory,
		graph:     graph,
		logger:    cfg.Logger,
		headers:   cfg.Headers,
		out:       out,
		toolNames: map[string][]string{},
	}
	r.commandHandlers = r.buildCommandHandlers()
	return r
}

// Login authenticates the configured credential and opens a session.
// Any previous session is closed.
func (r *REPL) Login(ctx context.Context) error {
	h := r.headers
	if h == nil {
		h = http.Header{}
	}
	user, err := r.auth.Authenticate(ctx, h)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	r.mu.Lock()
	old := r.sess
	r.sess = r.factory.NewSession(user)
	r.toolNames = map[string][]string{}
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	r.logger.Success("Authenticated as %s", user.Identity.ID)
	return nil
}

// Close releases the session and its downstream connections
func (r *REPL) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return nil
	}
	err := r.sess.Close()
	r.sess = nil
	return err
}

func (r *REPL) session() (*gateway.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return nil, errors.New("not authenticated, run 'login'")
	}
	return r.sess, nil
}

// Run starts the REPL
func (r *REPL) Run(ctx context.Context) error {
	if err := r.Login(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	historyFile := filepath.Join(os.TempDir(), ".mcp_authgate_history")
	config := &readline.Config{
		Prompt:          "authgate> ",
		HistoryFile:     historyFile,
		AutoComplete:    r.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.rl = rl

	r.logger.Info("REPL started. Type 'help' for available commands. Use TAB for completion.")
	fmt.Fprintln(r.out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("REPL shutting down...")
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			r.logger.Info("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				r.logger.Info("Goodbye!")
				return nil
			}
			r.logger.Error("Error: %v", err)
		}
		// tools listed by the command may have extended the completion set
		rl.Config.AutoComplete = r.createCompleter()

		fmt.Fprintln(r.out)
	}
}

// buildPcItems converts a slice of strings to readline completer items
func buildPcItems(names []string, children ...readline.PrefixCompleterInterface) []readline.PrefixCompleterInterface {
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name, children...)
	}
	return items
}

// createCompleter creates the tab completion configuration from the
// catalog and the tools seen so far
func (r *REPL) createCompleter() *readline.PrefixCompleter {
	var services []string
	r.mu.Lock()
	if r.sess != nil {
		services = r.sess.Catalog().Names()
	}
	toolNames := make(map[string][]string, len(r.toolNames))
	for k, v := range r.toolNames {
		toolNames[k] = v
	}
	r.mu.Unlock()

	serviceTools := make([]readline.PrefixCompleterInterface, 0, len(services))
	for _, svc := range services {
		serviceTools = append(serviceTools, readline.PcItem(svc, buildPcItems(toolNames[svc])...))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("login"),
		readline.PcItem("refresh"),
		readline.PcItem("whoami"),
		readline.PcItem("services"),
		readline.PcItem("tools", buildPcItems(services)...),
		readline.PcItem("describe", serviceTools...),
		readline.PcItem("call", serviceTools...),
		readline.PcItem("run"),
		readline.PcItem("verbose",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
	)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// commandHandler defines a REPL command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

// buildCommandHandlers creates the map of command handlers
func (r *REPL) buildCommandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"?": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"exit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"quit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"login": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.Login(ctx)
		}},
		"refresh": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.Login(ctx)
		}},
		"whoami": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.handleWhoami()
		}},
		"services": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.handleServices()
		}},
		"tools": {
			minArgs: 2,
			usage:   "usage: tools <service>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleListTools(ctx, parts[1])
			},
		},
		"describe": {
			minArgs: 3,
			usage:   "usage: describe <service> <tool>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleDescribe(ctx, parts[1], parts[2])
			},
		},
		"call": {
			minArgs: 3,
			usage:   "usage: call <service> <tool> [json]",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleCallTool(ctx, parts[1], parts[2], strings.Join(parts[3:], " "))
			},
		},
		"run": {
			minArgs: 1,
			handler: func(ctx context.Context, parts []string) error {
				return r.handleRun(ctx, strings.Join(parts[1:], " "))
			},
		},
		"verbose": {
			minArgs: 2,
			usage:   "usage: verbose <on|off>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleVerbose(parts[1])
			},
		},
	}
}

// executeCommand parses and executes a command
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])

	handler, exists := r.commandHandlers[command]
	if !exists {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}

	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}

	return handler.handler(ctx, parts)
}

// showHelp displays available commands
func (r *REPL) showHelp() error {
	w := r.out
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w, "  help, ?                        - Show this help message")
	fmt.Fprintln(w, "  login, refresh                 - Re-authenticate, reload and refresh service tokens")
	fmt.Fprintln(w, "  whoami                         - Show the authenticated identity")
	fmt.Fprintln(w, "  services                       - List services and whether you have access")
	fmt.Fprintln(w, "  tools <service>                - List the tools of a service")
	fmt.Fprintln(w, "  describe <service> <tool>      - Show detailed information about a tool")
	fmt.Fprintln(w, "  call <service> <tool> {json}   - Execute a tool with JSON arguments")
	fmt.Fprintln(w, "  run <request>                  - Run the multi-service flow")
	fmt.Fprintln(w, "  verbose <on|off>               - Enable/disable debug output")
	fmt.Fprintln(w, "  exit, quit                     - Exit the REPL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Keyboard shortcuts:")
	fmt.Fprintln(w, "  TAB                            - Auto-complete commands and arguments")
	fmt.Fprintln(w, "  Ctrl+R                         - Search command history")
	fmt.Fprintln(w, "  Ctrl+D                         - Exit REPL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  call github search_repos {\"q\": \"langgraph\"}")
	fmt.Fprintln(w, "  run search for LangGraph examples in project DEMO")
	return nil
}

// handleVerbose enables or disables debug output
func (r *REPL) handleVerbose(setting string) error {
	switch strings.ToLower(setting) {
	case "on":
		r.logger.SetVerbose(true)
		fmt.Fprintln(r.out, "Verbose output enabled")
	case "off":
		r.logger.SetVerbose(false)
		fmt.Fprintln(r.out, "Verbose output disabled")
	default:
		return fmt.Errorf("invalid setting: %s. Use 'on' or 'off'", setting)
	}
	return nil
}
