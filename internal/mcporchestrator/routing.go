package mcporchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RouteRequest finds a target server for req, load-balances if more
// than one candidate is healthy, forwards the request, and stamps the
// response with routing metadata.
func (o *Orchestrator) RouteRequest(ctx context.Context, req Request) Response {
	o.incrRequestsRouted()

	targets := o.findTargetServers(req)
	if len(targets) == 0 {
		return routingError(req.ID, "NO_SERVERS_AVAILABLE", "no servers available to handle this request")
	}

	selected := targets[0]
	if len(targets) > 1 && o.cfg.EnableLoadBalancing {
		selected = o.selectServerForLoadBalancing(targets)
	}

	o.mu.Lock()
	reg, ok := o.servers[selected]
	if !ok || reg.Target == nil {
		o.mu.Unlock()
		return serverUnavailable(req.ID, selected)
	}
	reg.LastActivity = o.now()
	o.loadCounters[selected]++
	o.mu.Unlock()

	resp, err := reg.Target.ProcessRequest(ctx, req)
	if err != nil {
		return routingError(req.ID, "ROUTING_ERROR", fmt.Sprintf("request routing failed: %v", err))
	}

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]any)
	}
	resp.Metadata["routed_by"] = o.name
	resp.Metadata["target_server"] = selected
	resp.Metadata["routing_timestamp"] = o.now()

	return resp
}

// findTargetServers evaluates routing rules in ascending priority
// order; the first enabled rule whose condition matches wins. With no
// match, it falls back to default prefix-based routing.
func (o *Orchestrator) findTargetServers(req Request) []string {
	o.mu.Lock()
	rules := make([]*RoutingRule, 0, len(o.routingRules))
	for _, r := range o.routingRules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if evaluateRoutingCondition(req, rule.Condition) {
			rule.LastUsed = o.now()
			var reachable []string
			for _, s := range rule.TargetServers {
				if _, ok := o.servers[s]; ok {
					reachable = append(reachable, s)
				}
			}
			o.mu.Unlock()
			return reachable
		}
	}
	o.mu.Unlock()

	if o.cfg.DefaultRoutingEnabled {
		return o.defaultRouting(req)
	}
	return nil
}

func evaluateRoutingCondition(req Request, cond RoutingCondition) bool {
	switch cond.Kind {
	case "method":
		for _, v := range cond.Values {
			if v == req.Method {
				return true
			}
		}
		return false
	case "method_prefix":
		return strings.HasPrefix(req.Method, cond.Prefix)
	case "parameter":
		if req.Params == nil {
			return false
		}
		return req.Params[cond.Parameter] == cond.Value
	case "context":
		if req.Context == nil {
			return false
		}
		return req.Context[cond.ContextKey] == cond.Value
	case "always":
		return true
	default:
		return false
	}
}

var methodPrefixTypes = []struct {
	prefixes []string
	exact    []string
	svcType  string
}{
	{prefixes: []string{"github_", "linear_", "create_documentation"}, svcType: "project_management"},
	{prefixes: []string{"telegram_"}, svcType: "telegram_tools"},
	{prefixes: []string{"execute_", "profile_", "run_tests"}, svcType: "development_tools"},
	{exact: []string{"web_search", "create_calendar_event", "generate_content", "search_knowledge_base"}, svcType: "social_tools"},
}

// defaultRouting routes by well-known method-prefix conventions when no
// explicit rule matched, falling back to every currently healthy server.
func (o *Orchestrator) defaultRouting(req Request) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, group := range methodPrefixTypes {
		matches := false
		for _, p := range group.prefixes {
			if strings.HasPrefix(req.Method, p) {
				matches = true
				break
			}
		}
		for _, m := range group.exact {
			if m == req.Method {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		var targets []string
		for name, reg := range o.servers {
			if reg.Type == group.svcType {
				targets = append(targets, name)
			}
		}
		return targets
	}

	var healthy []string
	for name, reg := range o.servers {
		if reg.Health == HealthHealthy {
			healthy = append(healthy, name)
		}
	}
	return healthy
}

// selectServerForLoadBalancing picks the healthy candidate with the
// lowest in-flight load counter, falling back to all candidates if none
// are healthy.
func (o *Orchestrator) selectServerForLoadBalancing(targets []string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var healthy []string
	for _, s := range targets {
		if reg, ok := o.servers[s]; ok && reg.Health == HealthHealthy {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) == 0 {
		healthy = targets
	}

	best := healthy[0]
	bestLoad := o.loadCounters[best]
	for _, s := range healthy[1:] {
		if l := o.loadCounters[s]; l < bestLoad {
			best, bestLoad = s, l
		}
	}
	return best
}

// AddRoutingRule registers a routing rule, assigning it an ID if unset.
func (o *Orchestrator) AddRoutingRule(rule *RoutingRule) {
	if rule.ID == "" {
		rule.ID = newMessageID()
	}
	rule.CreatedAt = o.now()

	o.mu.Lock()
	o.routingRules[rule.ID] = rule
	o.mu.Unlock()
}

// RemoveRoutingRule removes a rule by ID, reporting whether it existed.
func (o *Orchestrator) RemoveRoutingRule(ruleID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.routingRules[ruleID]; !ok {
		return false
	}
	delete(o.routingRules, ruleID)
	return true
}

// ListRoutingRules returns every registered rule.
func (o *Orchestrator) ListRoutingRules() []*RoutingRule {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*RoutingRule, 0, len(o.routingRules))
	for _, r := range o.routingRules {
		out = append(out, r)
	}
	return out
}

// setupDefaultRoutingFor wires a priority-10 method-prefix rule for reg
// if its type matches one of the well-known groups, so a newly
// registered server is reachable by default routing immediately without
// waiting on a fallback pass. The rule has a fixed per-type ID, so each
// registration replaces the type's previous rule with one listing every
// server of that type registered so far.
func (o *Orchestrator) setupDefaultRoutingFor(reg *ServerRegistration) {
	var prefix string
	switch reg.Type {
	case "project_management":
		prefix = "github_"
	case "telegram_tools":
		prefix = "telegram_"
	case "development_tools":
		prefix = "execute_"
	default:
		return
	}

	o.mu.Lock()
	var targets []string
	for name, r := range o.servers {
		if r.Type == reg.Type {
			targets = append(targets, name)
		}
	}
	o.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	o.AddRoutingRule(&RoutingRule{
		ID:                  "default_routing:" + reg.Type,
		Name:                fmt.Sprintf("%s default routing", reg.Type),
		Condition:           RoutingCondition{Kind: "method_prefix", Prefix: prefix},
		TargetServers:       targets,
		Priority:            10,
		Enabled:             true,
		LoadBalanceStrategy: "round_robin",
		FailoverEnabled:     true,
	})
}
