package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "online-status/internal/health/handler"
	"online-status/internal/policy/engine"
	presencehandler "online-status/internal/presence/handler"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Tracker is the process-wide presence tracker. If nil, presence RPCs return Unimplemented.
	Tracker presencehandler.Tracker
	// Visibility decides who sees client details in ListOnlineUsers. If nil, details are always redacted.
	Visibility engine.VisibilityEvaluator
	// HealthPinger is used by the health service for readiness (e.g. *sql.DB). If nil, Check skips the store ping.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by the health service for readiness (e.g. OPA evaluator). If nil, Check skips the policy check.
	HealthPolicyChecker healthhandler.PolicyChecker
}

// RegisterServices registers the gRPC services with the given server.
//
// Service → handler mapping:
//   - presence.v1.PresenceService → internal/presence/handler
//   - grpc.health.v1.Health       → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	presencehandler.RegisterPresenceServiceServer(s, presencehandler.NewServer(deps.Tracker, deps.Visibility))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker))
}

// PublicMethods returns the full method names callable without a bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		presencehandler.MethodHeartbeat:      true,
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
		healthpb.Health_List_FullMethodName:  true,
	}
}

// TelemetrySkipMethods returns the full method names not reported as grpc.request events.
// Heartbeats and health probes are too frequent to be worth an event each.
func TelemetrySkipMethods() map[string]bool {
	return map[string]bool{
		presencehandler.MethodHeartbeat:      true,
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
		healthpb.Health_List_FullMethodName:  true,
	}
}
