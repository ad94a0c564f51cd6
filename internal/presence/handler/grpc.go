// Package handler exposes the presence tracker over gRPC (presence.v1.PresenceService).
package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"online-status/internal/platform/rbac"
	"online-status/internal/policy/engine"
	"online-status/internal/presence/domain"
	"online-status/internal/server/interceptors"
)

// Tracker is the subset of service.Tracker the handler needs.
type Tracker interface {
	AcceptSignal(ctx context.Context, sig domain.Signal) domain.Ack
	IsOnline(ctx context.Context, userID int64) bool
	GetLastSeen(ctx context.Context, userID int64) (time.Time, bool)
	GetOnlineUsers(ctx context.Context) []domain.OnlineUser
	GetOnlineCount(ctx context.Context) int64
	OnLogin(ctx context.Context, userID int64, meta domain.ClientMetadata)
	OnLogout(ctx context.Context, userID int64)
}

// Server implements PresenceServiceServer.
type Server struct {
	tracker    Tracker
	visibility engine.VisibilityEvaluator
}

// NewServer returns a presence gRPC server. If tracker is nil, all RPCs return Unimplemented.
// With a nil visibility evaluator ListOnlineUsers redacts client details for every viewer.
func NewServer(tracker Tracker, visibility engine.VisibilityEvaluator) *Server {
	return &Server{tracker: tracker, visibility: visibility}
}

var _ PresenceServiceServer = (*Server)(nil)

// Heartbeat accepts an activity signal. The bearer token is optional: anonymous or invalid callers get
// status "offline" and nothing is recorded. Request fields: user_agent, page_url (both optional).
func (s *Server) Heartbeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method Heartbeat not implemented")
	}
	meta := clientMetadata(ctx)
	if ua := stringField(req, "user_agent"); ua != "" {
		meta.UserAgent = ua
	}
	meta.PageURL = stringField(req, "page_url")

	ack := s.tracker.AcceptSignal(ctx, domain.Signal{Token: interceptors.BearerToken(ctx), Meta: meta})
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue(ack.Status),
	}}, nil
}

// IsOnline reports whether the user was active within the online timeout.
func (s *Server) IsOnline(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.BoolValue, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method IsOnline not implemented")
	}
	if req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user id must be positive")
	}
	return wrapperspb.Bool(s.tracker.IsOnline(ctx, req.GetValue())), nil
}

// GetLastSeen returns the user's last activity time, or NotFound when no record exists.
func (s *Server) GetLastSeen(ctx context.Context, req *wrapperspb.Int64Value) (*timestamppb.Timestamp, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method GetLastSeen not implemented")
	}
	if req.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user id must be positive")
	}
	at, ok := s.tracker.GetLastSeen(ctx, req.GetValue())
	if !ok {
		return nil, status.Error(codes.NotFound, "no activity recorded")
	}
	return timestamppb.New(at), nil
}

// ListOnlineUsers returns the online users, most recent first, as {"users": [...], "count": n}.
// Client details are redacted unless the visibility policy allows the caller to see them.
func (s *Server) ListOnlineUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method ListOnlineUsers not implemented")
	}
	p, err := rbac.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	viewer := engine.Viewer{UserID: p.UserID, Roles: p.Roles}

	users := s.tracker.GetOnlineUsers(ctx)
	list := make([]interface{}, 0, len(users))
	for _, u := range users {
		if !s.showDetails(ctx, viewer, u.UserID) {
			u = u.Redacted()
		}
		list = append(list, onlineUserFields(u))
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"users": list,
		"count": len(list),
	})
	if err != nil {
		log.Printf("presence: encode online users: %v", err)
		return nil, status.Error(codes.Internal, "failed to encode online users")
	}
	return out, nil
}

func (s *Server) showDetails(ctx context.Context, viewer engine.Viewer, subject int64) bool {
	if s.visibility == nil {
		return false
	}
	ok, err := s.visibility.ShowDetails(ctx, viewer, subject)
	if err != nil {
		log.Printf("presence: visibility policy for viewer %d: %v", viewer.UserID, err)
		return false
	}
	return ok
}

// CountOnlineUsers returns the number of online users.
func (s *Server) CountOnlineUsers(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method CountOnlineUsers not implemented")
	}
	return wrapperspb.Int64(s.tracker.GetOnlineCount(ctx)), nil
}

// NotifyLogin marks the authenticated caller online immediately.
func (s *Server) NotifyLogin(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method NotifyLogin not implemented")
	}
	p, err := rbac.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	s.tracker.OnLogin(ctx, p.UserID, clientMetadata(ctx))
	return &emptypb.Empty{}, nil
}

// NotifyLogout marks the authenticated caller offline immediately.
func (s *Server) NotifyLogout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.tracker == nil {
		return nil, status.Error(codes.Unimplemented, "method NotifyLogout not implemented")
	}
	p, err := rbac.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	s.tracker.OnLogout(ctx, p.UserID)
	return &emptypb.Empty{}, nil
}

// clientMetadata collects the caller's address and user agent from the connection.
func clientMetadata(ctx context.Context) domain.ClientMetadata {
	meta := domain.ClientMetadata{IPAddress: interceptors.ClientIP(ctx)}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			meta.UserAgent = ua[0]
		}
	}
	return meta
}

func stringField(s *structpb.Struct, name string) string {
	v, ok := s.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func onlineUserFields(u domain.OnlineUser) map[string]interface{} {
	roles := make([]interface{}, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r)
	}
	return map[string]interface{}{
		"user_id":       u.UserID,
		"display_name":  u.DisplayName,
		"contact":       u.Contact,
		"roles":         roles,
		"guest":         u.Guest,
		"last_activity": u.LastActivity.UTC().Format(time.RFC3339),
		"ip_address":    u.IPAddress,
		"user_agent":    u.UserAgent,
		"page_url":      u.PageURL,
	}
}
