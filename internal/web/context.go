package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/crashdb/internal/core"
)

// writeContext tags the request context with the caller address for the
// record log lines. RemoteAddr is already rewritten by TrustedRealIP.
func writeContext(r *http.Request) context.Context {
	return core.ContextWithSource(r.Context(), "api "+r.RemoteAddr)
}
