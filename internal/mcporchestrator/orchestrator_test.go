package mcporchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/mcporchestrator"
)

type fakeTarget struct {
	healthy bool
	score   float64
	healthErr error
	response  mcporchestrator.Response
	processErr error
}

func (f *fakeTarget) ProcessRequest(ctx context.Context, req mcporchestrator.Request) (mcporchestrator.Response, error) {
	if f.processErr != nil {
		return mcporchestrator.Response{}, f.processErr
	}
	resp := f.response
	resp.ID = req.ID
	resp.Success = true
	return resp, nil
}

func (f *fakeTarget) HealthCheck(ctx context.Context) (mcporchestrator.HealthReport, error) {
	if f.healthErr != nil {
		return mcporchestrator.HealthReport{}, f.healthErr
	}
	return mcporchestrator.HealthReport{Healthy: f.healthy, Score: f.score}, nil
}

func registerHealthy(o *mcporchestrator.Orchestrator, name, svcType string) *fakeTarget {
	target := &fakeTarget{healthy: true, score: 9.0}
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: name, Type: svcType, Target: target})
	reg, _ := o.GetServer(name)
	reg.Health = mcporchestrator.HealthHealthy
	return target
}

func TestRouteRequest_MatchesRuleByMethodPrefix(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.DefaultConfig())
	registerHealthy(o, "gh", "project_management")

	resp := o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "r1", Method: "github_create_issue"})
	require.True(t, resp.Success)
	require.Equal(t, "gh", resp.Metadata["target_server"])
}

func TestRouteRequest_DefaultRoutingMatchesServerTypeByMethod(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.Config{DefaultRoutingEnabled: true, EnableLoadBalancing: true})
	registerHealthy(o, "social", "social_tools")

	resp := o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "r2", Method: "web_search"})
	require.True(t, resp.Success)
	require.Equal(t, "social", resp.Metadata["target_server"])
}

func TestRouteRequest_NoServersAvailable(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.DefaultConfig())

	resp := o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "r3", Method: "unknown_method"})
	require.False(t, resp.Success)
	require.Equal(t, "NO_SERVERS_AVAILABLE", resp.Error.Code)
}

func TestRouteRequest_LoadBalancesToLowestLoad(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.DefaultConfig())
	registerHealthy(o, "dev-a", "development_tools")
	registerHealthy(o, "dev-b", "development_tools")

	for i := 0; i < 3; i++ {
		o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "warm", Method: "execute_command"})
	}

	resp := o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "r4", Method: "execute_command"})
	require.True(t, resp.Success)
	require.Contains(t, []string{"dev-a", "dev-b"}, resp.Metadata["target_server"])
}

func TestRouteRequest_SkipsDisabledRule(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.DefaultConfig())
	registerHealthy(o, "gh", "project_management")
	for _, r := range o.ListRoutingRules() {
		o.RemoveRoutingRule(r.ID)
	}
	o.AddRoutingRule(&mcporchestrator.RoutingRule{
		Name:      "disabled",
		Condition: mcporchestrator.RoutingCondition{Kind: "always"},
		TargetServers: []string{"gh"},
		Priority:  1,
		Enabled:   false,
	})

	resp := o.RouteRequest(context.Background(), mcporchestrator.Request{ID: "r5", Method: "github_anything"})
	require.True(t, resp.Success, "disabled rule must be skipped, falling through to default routing")
}

func TestPerformHealthChecks_ClassifiesByScore(t *testing.T) {
	cfg := mcporchestrator.DefaultConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	o := mcporchestrator.New("test", cfg)
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "healthy", Type: "x", Target: &fakeTarget{healthy: true, score: 9.0}})
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "degraded", Type: "x", Target: &fakeTarget{healthy: true, score: 6.0}})
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "unhealthy", Type: "x", Target: &fakeTarget{healthy: false, score: 0}})
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "unknown", Type: "x", Target: &fakeTarget{healthErr: errors.New("boom")}})

	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool {
		summary := o.GetHealthSummary()
		return summary.HealthyServers == 1 && summary.DegradedServers == 1 &&
			summary.UnhealthyServers == 1 && summary.UnknownServers == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSendMessage_DeliversInPriorityOrder(t *testing.T) {
	cfg := mcporchestrator.DefaultConfig()
	cfg.MessageProcessingInterval = 10 * time.Millisecond
	o := mcporchestrator.New("test", cfg)
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "target", Type: "x", Target: &fakeTarget{healthy: true, score: 9.0}})

	var order []string
	o.RegisterHandler("target", "ping", func(ctx context.Context, msg mcporchestrator.InterServerMessage) error {
		order = append(order, msg.ID)
		return nil
	})

	lowID, err := o.SendMessage("a", "target", "ping", nil, mcporchestrator.PriorityLow, 0)
	require.NoError(t, err)
	highID, err := o.SendMessage("a", "target", "ping", nil, mcporchestrator.PriorityCritical, 0)
	require.NoError(t, err)

	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return len(order) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{highID, lowID}, order)
}

func TestSendMessage_UnknownTargetReturnsError(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.DefaultConfig())
	_, err := o.SendMessage("a", "ghost", "ping", nil, mcporchestrator.PriorityNormal, 0)
	require.ErrorIs(t, err, mcporchestrator.ErrTargetServerNotFound)
}

func TestSendMessage_DisabledMessagingReturnsError(t *testing.T) {
	o := mcporchestrator.New("test", mcporchestrator.Config{EnableInterServerMessaging: false})
	o.RegisterServer(&mcporchestrator.ServerRegistration{Name: "target", Type: "x", Target: &fakeTarget{healthy: true}})
	_, err := o.SendMessage("a", "target", "ping", nil, mcporchestrator.PriorityNormal, 0)
	require.ErrorIs(t, err, mcporchestrator.ErrMessagingDisabled)
}
