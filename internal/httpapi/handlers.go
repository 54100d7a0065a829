package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
)

type serviceInfo struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Transport string `json:"transport"`
	Access    bool   `json:"access"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type callToolRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

type runRequest struct {
	Request string `json:"request"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mcp-authgate",
		"version": s.version,
	})
}

// whoami returns the caller's claims with token values redacted
func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	claims := user.Claims()
	for _, svc := range user.Tokens.Services() {
		claims[svc+"_token"] = logging.Redact(user.Tokens.Token(svc))
	}
	claims["credential"] = string(user.Credential)
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	catalog := s.factory.Catalog.Catalog()

	services := make([]serviceInfo, 0, len(catalog))
	for _, name := range catalog.Names() {
		spec := catalog[name]
		services = append(services, serviceInfo{
			Name:      name,
			URL:       spec.URL,
			Transport: spec.Transport,
			Access:    user.Token(name) != "",
		})
	}
	available := gateway.AvailableServices(user, catalog)
	if available == nil {
		available = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services":  services,
		"available": available,
	})
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	sess := s.newSession(r)
	defer sess.Close()

	service := r.PathValue("service")
	tools, err := sess.ListTools(ctx, service)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": service,
		"tools":   out,
	})
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	sess := s.newSession(r)
	defer sess.Close()

	service, tool := r.PathValue("service"), r.PathValue("tool")
	result, err := sess.CallTool(ctx, service, tool, req.Arguments)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":    service,
		"tool":       tool,
		"content":    gateway.ResultText(result),
		"structured": result.StructuredContent,
	})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	sess := s.newSession(r)
	defer sess.Close()

	state, err := s.graph.Run(ctx, sess, req.Request)
	if err != nil {
		s.logger.Error("Run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Run failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"run":      state,
		"metadata": sess.User().OwnerMetadata(state.StartedAt),
	})
}

func (s *Server) newSession(r *http.Request) *gateway.Session {
	user, _ := identity.UserFromContext(r.Context())
	return s.factory.NewSession(user)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(r.Context(), s.timeout)
	}
	return context.WithCancel(r.Context())
}

// writeGatewayError maps permission gate, transport and downstream errors
// to 403, 400 and 502
func (s *Server) writeGatewayError(w http.ResponseWriter, err error) {
	var mae *gateway.MissingAccessError
	var ute *gateway.UnsupportedTransportError
	var opErr *gateway.OperationError
	switch {
	case errors.As(err, &mae):
		writeError(w, http.StatusForbidden, fmt.Sprintf("Missing access to services: %s", strings.Join(mae.Services, ", ")))
	case errors.As(err, &ute):
		writeError(w, http.StatusBadRequest, ute.Error())
	case errors.As(err, &opErr):
		s.logger.Warning("Downstream call failed: %v", err)
		writeError(w, http.StatusBadGateway, opErr.Error())
	default:
		s.logger.Error("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
