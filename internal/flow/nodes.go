package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-authgate/internal/gateway"
)

func authenticationCheck(_ context.Context, sess Session, state *State) error {
	user := sess.User()
	if user == nil {
		return errors.New("no authenticated user")
	}
	state.AvailableServices = sess.AvailableServices()
	if state.AvailableServices == nil {
		state.AvailableServices = []string{}
	}
	state.say("Authentication successful. User: %s, organization: %s, available services: %s",
		user.Identity.Email, user.Identity.OrgID, strings.Join(state.AvailableServices, ", "))
	return nil
}

func githubIntegration(ctx context.Context, sess Session, state *State) error {
	if !state.has("github") {
		state.say("Skipping GitHub operations - no GitHub token configured")
		return nil
	}

	res := &ServiceResult{Data: map[string]interface{}{}}
	state.GitHub = res

	repos, err := callJSON(ctx, sess, "github", "list_repos", map[string]interface{}{"type": "owner", "sort": "updated"})
	if err != nil {
		res.Error = err.Error()
		state.say("GitHub integration failed: %v", err)
		return nil
	}
	profile, err := callJSON(ctx, sess, "github", "get_user", map[string]interface{}{})
	if err != nil {
		res.Error = err.Error()
		state.say("GitHub integration failed: %v", err)
		return nil
	}

	res.Success = true
	res.Count = countOf(repos)
	res.Data["repositories"] = repos
	res.Data["profile"] = profile
	state.say("GitHub integration results: profile %s, %d repositories", field(profile, "login"), res.Count)
	return nil
}

func jiraIntegration(ctx context.Context, sess Session, state *State) error {
	if !state.has("jira") {
		state.say("Skipping Jira operations - no Jira token configured")
		return nil
	}

	key := ExtractProjectKey(state.Request)
	res := &ServiceResult{Data: map[string]interface{}{"project_key": key}}
	state.Jira = res

	project, err := callJSON(ctx, sess, "jira", "get_project", map[string]interface{}{"project_key": key})
	if err != nil {
		res.Error = err.Error()
		state.say("Jira integration failed: %v", err)
		return nil
	}
	issues, err := callJSON(ctx, sess, "jira", "search_issues", map[string]interface{}{
		"jql":         fmt.Sprintf("project = %s ORDER BY created DESC", key),
		"max_results": 10,
	})
	if err != nil {
		res.Error = err.Error()
		state.say("Jira integration failed: %v", err)
		return nil
	}

	res.Success = true
	res.Count = countOf(issues)
	res.Data["project"] = project
	res.Data["issues"] = issues
	state.say("Jira integration results for project %s: %s, %d recent issues", key, field(project, "name"), res.Count)
	return nil
}

func multiServiceSearch(ctx context.Context, sess Session, state *State) error {
	query := ExtractSearchQuery(state.Request)
	if query == "" {
		query = "LangGraph"
	}
	result := &SearchResult{Query: query, ServicesSearched: []string{}, Results: map[string]interface{}{}}
	state.Search = result

	catalog := sess.Catalog()
	var failed []string
	for _, svc := range state.AvailableServices {
		tool := catalog[svc].SearchTool
		if tool == "" {
			continue
		}
		result.ServicesSearched = append(result.ServicesSearched, svc)
		found, err := callJSON(ctx, sess, svc, tool, searchArgs(svc, query))
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", svc, err))
			result.Results[svc] = nil
			continue
		}
		result.Results[svc] = found
	}

	if len(result.ServicesSearched) == 0 {
		state.say("No services available for search")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Multi-service search results for %q across %s:", query, strings.Join(result.ServicesSearched, ", "))
	for _, svc := range result.ServicesSearched {
		if n := countOf(result.Results[svc]); n > 0 {
			fmt.Fprintf(&b, "\n- %s: %d results found", svc, n)
		} else {
			fmt.Fprintf(&b, "\n- %s: no results", svc)
		}
	}
	state.say("%s", b.String())

	if len(failed) > 0 {
		return fmt.Errorf("partial failure: %s", strings.Join(failed, "; "))
	}
	return nil
}

func customOperation(ctx context.Context, sess Session, state *State) error {
	results := map[string]interface{}{}
	state.Custom = results
	user := sess.User()

	if state.has("github") {
		profile, err := callJSON(ctx, sess, "github", "get_user", map[string]interface{}{
			"include_private": true,
			"include_stats":   true,
		})
		if err != nil {
			return err
		}
		activity, err := callJSON(ctx, sess, "github", "get_user_events", map[string]interface{}{
			"username": field(profile, "login"),
			"per_page": 5,
		})
		if err != nil {
			return err
		}
		results["github"] = map[string]interface{}{"profile": profile, "recent_activity": activity}
	}

	if state.has("jira") {
		activity, err := callJSON(ctx, sess, "jira", "get_user_activity", map[string]interface{}{
			"username": user.Identity.Email,
			"days":     7,
		})
		if err != nil {
			return err
		}
		results["jira"] = map[string]interface{}{"recent_activity": activity}
	}

	services := make([]string, 0, len(results))
	for svc := range results {
		services = append(services, svc)
	}
	sort.Strings(services)

	var b strings.Builder
	b.WriteString("Custom operation results:")
	for _, svc := range services {
		data := results[svc].(map[string]interface{})
		fmt.Fprintf(&b, "\n- %s: %d recent activities", svc, countOf(data["recent_activity"]))
	}
	state.say("%s", b.String())
	return nil
}

func summary(_ context.Context, sess Session, state *State) error {
	var b strings.Builder
	user := sess.User()
	if user != nil {
		fmt.Fprintf(&b, "User: %s\nOrganization: %s\n", user.Identity.Email, user.Identity.OrgID)
	}
	fmt.Fprintf(&b, "Services available: %s\n", strings.Join(state.AvailableServices, ", "))

	if r := state.GitHub; r != nil {
		if r.Success {
			fmt.Fprintf(&b, "GitHub: retrieved %d repositories\n", r.Count)
		} else {
			fmt.Fprintf(&b, "GitHub: %s\n", r.Error)
		}
	}
	if r := state.Jira; r != nil {
		if r.Success {
			fmt.Fprintf(&b, "Jira: found %d recent issues\n", r.Count)
		} else {
			fmt.Fprintf(&b, "Jira: %s\n", r.Error)
		}
	}
	if state.Search != nil {
		fmt.Fprintf(&b, "Search: searched across %d services\n", len(state.Search.ServicesSearched))
	}

	if len(state.Errors) == 0 {
		b.WriteString("No errors encountered.")
	} else {
		fmt.Fprintf(&b, "Errors encountered: %d", len(state.Errors))
		for _, e := range state.Errors {
			fmt.Fprintf(&b, "\n  - %s", e)
		}
	}
	state.say("%s", b.String())
	return nil
}

func searchArgs(service, query string) map[string]interface{} {
	if service == "github" {
		return map[string]interface{}{"q": query, "sort": "stars"}
	}
	return map[string]interface{}{"query": query}
}

// callJSON calls a tool and decodes its text content as JSON. Text that is
// not JSON is returned as a string.
func callJSON(ctx context.Context, sess Session, service, tool string, args map[string]interface{}) (interface{}, error) {
	result, err := sess.CallTool(ctx, service, tool, args)
	if err != nil {
		return nil, err
	}
	return decodeResult(result), nil
}

func decodeResult(result *mcp.CallToolResult) interface{} {
	if result != nil && result.StructuredContent != nil {
		return result.StructuredContent
	}
	text := gateway.ResultText(result)
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

func countOf(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case []interface{}:
		return len(t)
	case map[string]interface{}:
		for _, key := range []string{"items", "issues", "results", "events"} {
			if items, ok := t[key].([]interface{}); ok {
				return len(items)
			}
		}
		return 1
	case string:
		if t == "" {
			return 0
		}
		return 1
	}
	return 1
}

func field(v interface{}, key string) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "N/A"
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "N/A"
	}
	return s
}
