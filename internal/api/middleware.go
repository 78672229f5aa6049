package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/smazurov/hlsfeed/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// HTTPLoggingMiddleware logs HTTP requests with a level chosen by status code.
// Each request gets an id, taken from X-Request-ID when the client sent one.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	requestID := ctx.Header(RequestIDHeader)
	if requestID == "" || len(requestID) > 128 {
		requestID = uuid.NewString()
	}
	ctx.SetHeader(RequestIDHeader, requestID)

	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		attrs = append(attrs, slog.String("query", query))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case ctx.Method() == http.MethodOptions:
		level = slog.LevelDebug
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}

// LocalNetworkOnly rejects requests from outside loopback, link-local and
// private ranges with 403.
func LocalNetworkOnly(api huma.API) func(huma.Context, func(huma.Context)) {
	logger := logging.GetLogger("http")
	return func(ctx huma.Context, next func(huma.Context)) {
		if IsLocalAddr(ctx.RemoteAddr()) {
			next(ctx)
			return
		}
		logger.Warn("API access denied for external address", "remote_addr", ctx.RemoteAddr())
		huma.WriteErr(api, ctx, http.StatusForbidden, "API access is restricted to local network only")
	}
}

// IsLocalAddr reports whether remoteAddr (host:port or bare host) is a
// loopback, link-local or private address. IPv4-mapped IPv6 addresses are
// judged by their IPv4 form.
func IsLocalAddr(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	return addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsPrivate()
}
