package chi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/dirsearch/internal/logger"
)

// AgentHeader carries the calling agent's identity on tool routes.
const AgentHeader = "X-Agent-Identity"

type agentCtxKey struct{}

// keyring is the set of accepted bearer keys. An empty keyring disables authentication.
type keyring [][]byte

func newKeyring(keys []string) keyring {
	k := make(keyring, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			k = append(k, []byte(key))
		}
	}
	return k
}

// contains compares against every key in constant time.
func (k keyring) contains(token string) bool {
	ok := false
	for _, key := range k {
		if subtle.ConstantTimeCompare(key, []byte(token)) == 1 {
			ok = true
		}
	}
	return ok
}

// BearerAuthMiddleware accepts requests carrying "Authorization: Bearer <key>" for one of keys.
// Empty keys disable the check.
func BearerAuthMiddleware(keys []string) func(http.Handler) http.Handler {
	ring := newKeyring(keys)

	return func(next http.Handler) http.Handler {
		if len(ring) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, isBearer := strings.CutPrefix(auth, "Bearer ")
			switch {
			case auth == "":
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
			case !isBearer:
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
			case !ring.contains(token):
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireAgent rejects tool calls without an agent identity and tags the request logger with it.
func RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent := strings.TrimSpace(r.Header.Get(AgentHeader))
		if agent == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing "+AgentHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), agentCtxKey{}, agent)
		reqLogger := logpkg.FromContext(ctx).With(zap.String("agent", agent))
		ctx = logpkg.ContextWithLogger(ctx, reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AgentFromContext returns the identity placed by RequireAgent.
func AgentFromContext(ctx context.Context) string {
	agent, _ := ctx.Value(agentCtxKey{}).(string)
	return agent
}
