// Package flow runs the fixed node graph that exercises a user's downstream
// services: an authentication check, GitHub and Jira operations, a
// cross-service search, a custom operation and a summary.
package flow

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

// Node names
const (
	NodeAuthenticationCheck = "authentication_check"
	NodeGitHubIntegration   = "github_integration"
	NodeJiraIntegration     = "jira_integration"
	NodeMultiServiceSearch  = "multi_service_search"
	NodeCustomOperation     = "custom_operation"
	NodeSummary             = "summary"
	End                     = "__end__"
)

// maxSteps bounds a run in case a router loops
const maxSteps = 32

// Session is the per-request view of the caller used by the nodes
type Session interface {
	User() *identity.AuthUser
	Catalog() gateway.Catalog
	AvailableServices() []string
	CallTool(ctx context.Context, service, tool string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// ServiceResult is the outcome of one service's operations
type ServiceResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Count   int                    `json:"count"`
}

// SearchResult aggregates the cross-service search
type SearchResult struct {
	Query            string                 `json:"query"`
	ServicesSearched []string               `json:"services_searched"`
	Results          map[string]interface{} `json:"results"`
}

// State is threaded through every node of a run
type State struct {
	RunID             string                 `json:"run_id"`
	Request           string                 `json:"user_request"`
	AvailableServices []string               `json:"available_services"`
	GitHub            *ServiceResult         `json:"github_data,omitempty"`
	Jira              *ServiceResult         `json:"jira_data,omitempty"`
	Search            *SearchResult          `json:"search_results,omitempty"`
	Custom            map[string]interface{} `json:"custom_results,omitempty"`
	Messages          []string               `json:"messages"`
	Errors            []string               `json:"errors"`
	Visited           []string               `json:"visited"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
}

func (s *State) has(service string) bool {
	for _, svc := range s.AvailableServices {
		if svc == service {
			return true
		}
	}
	return false
}

func (s *State) say(format string, args ...interface{}) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

// NodeFunc executes one step of a run
type NodeFunc func(ctx context.Context, sess Session, state *State) error

// RouteFunc picks the next node after the one it is attached to
type RouteFunc func(state *State) string

type node struct {
	fn    NodeFunc
	label string
	next  RouteFunc
}

// Graph is an ordered set of nodes with static or conditional edges
type Graph struct {
	entry  string
	nodes  map[string]node
	logger *logging.Logger
}

// NewGraph builds the standard graph:
//
//	authentication_check -> github_integration | jira_integration
//	github_integration   -> jira_integration | multi_service_search
//	jira_integration -> multi_service_search -> custom_operation -> summary
func NewGraph(logger *logging.Logger) *Graph {
	g := &Graph{entry: NodeAuthenticationCheck, nodes: map[string]node{}, logger: logger}

	g.add(NodeAuthenticationCheck, "Authentication check", authenticationCheck, func(s *State) string {
		if s.has("github") {
			return NodeGitHubIntegration
		}
		return NodeJiraIntegration
	})
	g.add(NodeGitHubIntegration, "GitHub integration", githubIntegration, func(s *State) string {
		if s.has("jira") {
			return NodeJiraIntegration
		}
		return NodeMultiServiceSearch
	})
	g.add(NodeJiraIntegration, "Jira integration", jiraIntegration, always(NodeMultiServiceSearch))
	g.add(NodeMultiServiceSearch, "Multi-service search", multiServiceSearch, always(NodeCustomOperation))
	g.add(NodeCustomOperation, "Custom operation", customOperation, always(NodeSummary))
	g.add(NodeSummary, "Summary", summary, always(End))
	return g
}

func (g *Graph) add(name, label string, fn NodeFunc, next RouteFunc) {
	g.nodes[name] = node{fn: fn, label: label, next: next}
}

func always(name string) RouteFunc {
	return func(*State) string { return name }
}

// Run executes the graph for one request. A failing node records its error
// in the state and the run moves on; Run itself only fails when the graph
// is malformed or ctx is cancelled.
func (g *Graph) Run(ctx context.Context, sess Session, request string) (*State, error) {
	state := &State{
		RunID:     NewRunID(),
		Request:   request,
		StartedAt: time.Now().UTC(),
		Messages:  []string{},
		Errors:    []string{},
	}
	g.logger.Info("Starting run %s", state.RunID)

	current := g.entry
	for step := 0; current != End; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if step >= maxSteps {
			return state, fmt.Errorf("run %s exceeded %d steps", state.RunID, maxSteps)
		}
		n, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("unknown node %q", current)
		}

		g.logger.Debug("Run %s: entering %s", state.RunID, current)
		state.Visited = append(state.Visited, current)
		if err := n.fn(ctx, sess, state); err != nil {
			msg := fmt.Sprintf("%s error: %v", n.label, err)
			g.logger.Error("Run %s: %s", state.RunID, msg)
			state.Errors = append(state.Errors, msg)
			state.say("Error: %s", msg)
		}
		current = n.next(state)
	}

	state.FinishedAt = time.Now().UTC()
	g.logger.Success("Run %s finished with %d errors", state.RunID, len(state.Errors))
	return state, nil
}

// NewRunID returns a time-ordered run identifier
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
