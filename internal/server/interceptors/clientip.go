package interceptors

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"online-status/internal/presence/domain"
)

// clientIPHeaders are consulted in order; each may hold a comma-separated list.
var clientIPHeaders = []string{"x-client-ip", "x-forwarded-for", "x-real-ip"}

// ClientIP returns the first public address found in the forwarding headers, then the peer address.
// If the peer address is not public it is still returned; without any address the result is "0.0.0.0".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, h := range clientIPHeaders {
			for _, v := range md.Get(h) {
				for _, part := range strings.Split(v, ",") {
					if addr, ok := publicAddr(part); ok {
						return addr
					}
				}
			}
		}
	}
	peerIP := peerAddr(ctx)
	if addr, ok := publicAddr(peerIP); ok {
		return addr
	}
	if peerIP != "" {
		return peerIP
	}
	return domain.UnknownIP
}

// publicAddr parses s and reports whether it is a routable unicast address.
func publicAddr(s string) (string, bool) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	ip = ip.Unmap()
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return "", false
	}
	return ip.WithZone("").String(), true
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if _, err := netip.ParseAddr(addr); err == nil {
		return addr
	}
	return ""
}
