package kpirewardd

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"auxrewards/observability/logging"
)

// Authenticator validates bearer tokens on admin requests.
type Authenticator struct {
	bearerToken string
	logger      *slog.Logger
}

// NewAuthenticator constructs an Authenticator for token.
func NewAuthenticator(token string, logger *slog.Logger) (*Authenticator, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("admin bearer token required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{bearerToken: token, logger: logger}, nil
}

// Middleware enforces authentication for admin handlers.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		presented := parseBearerToken(r.Header.Get("Authorization"))
		if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(a.bearerToken)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		a.logger.Warn("kpirewardd: admin authentication failed",
			slog.String("path", r.URL.Path),
			logging.MaskField("token", presented))
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	scheme, token, found := strings.Cut(trimmed, " ")
	if !found || !strings.EqualFold(strings.TrimSpace(scheme), "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
