// Package httpapi implements the side-car and admin HTTP surfaces of
// spec.md §6. Handlers are thin: they deserialize, validate shape, and call
// straight into group.Manager, tracker.Tracker, audit.Log and the other
// already-built managers -- no business logic lives here. Routing follows
// the teacher's cmd/cloudrun/main.go idiom: a plain http.ServeMux and a
// writeJSON helper, generalized from one fixed route to the full surface
// using Go's method-and-wildcard mux patterns.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/metricsloop"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

// Authenticator verifies an inbound request carries valid side-car/admin
// credentials. It is the one piece of request-auth this package depends on;
// callers supply a concrete implementation at construction time.
type Authenticator interface {
	Authenticate(r *http.Request) bool
}

// SharedSecretAuthenticator is the trivial Authenticator: it compares an
// "Authorization: Bearer <secret>" header against a fixed secret in
// constant time. Real deployments may supply a richer Authenticator (OIDC,
// mTLS, per-group keys); this is the one this package ships with.
type SharedSecretAuthenticator struct {
	secret string
}

// NewSharedSecretAuthenticator builds a SharedSecretAuthenticator.
func NewSharedSecretAuthenticator(secret string) *SharedSecretAuthenticator {
	return &SharedSecretAuthenticator{secret: secret}
}

func (a *SharedSecretAuthenticator) Authenticate(r *http.Request) bool {
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) == 1
}

// Server wires the control plane's managers behind the HTTP surface.
type Server struct {
	groups      *group.Manager
	tracker     *tracker.Tracker
	shutdown    *shutdown.Manager
	reconfigure *reconfigure.Manager
	audit       *audit.Log
	report      *metricsloop.GroupReport
	auth        Authenticator

	seedGroups          []model.InstanceGroup
	protectedTTLDefault time.Duration

	log *slog.Logger
}

// Config bundles the dependencies and settings a Server needs beyond its
// managers, kept separate so New's signature doesn't grow every time a new
// knob is added.
type Config struct {
	SeedGroups          []model.InstanceGroup
	ProtectedTTLDefault time.Duration
}

// New builds a Server.
func New(
	groups *group.Manager,
	trk *tracker.Tracker,
	shutdownMgr *shutdown.Manager,
	reconfMgr *reconfigure.Manager,
	auditLog *audit.Log,
	report *metricsloop.GroupReport,
	auth Authenticator,
	cfg Config,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		groups: groups, tracker: trk, shutdown: shutdownMgr, reconfigure: reconfMgr,
		audit: auditLog, report: report, auth: auth,
		seedGroups: cfg.SeedGroups, protectedTTLDefault: cfg.ProtectedTTLDefault,
		log: log,
	}
}

// Handler builds the routed http.Handler for this Server, wrapped in
// otelhttp so every request gets a server span (spec.md's tracing note).
// Callers that need to mount additional routes on the underlying mux (a
// /metrics endpoint, say) before tracing is applied should use Mux instead.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Mux(), "autoscaler-http-api")
}

// Mux builds the routed *http.ServeMux for this Server, without the
// otelhttp wrapper Handler applies.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /stats", s.withAuth(s.handleStats))
	mux.HandleFunc("POST /status", s.handleStatus)
	mux.HandleFunc("POST /poll", s.handlePoll)

	mux.HandleFunc("GET /groups", s.withAuth(s.handleListGroups))
	mux.HandleFunc("GET /groups/{name}", s.withAuth(s.handleGetGroup))
	mux.HandleFunc("PUT /groups/{name}", s.withAuth(s.handlePutGroup))
	mux.HandleFunc("DELETE /groups/{name}", s.withAuth(s.handleDeleteGroup))
	mux.HandleFunc("PUT /groups/{name}/desired", s.withAuth(s.handlePutDesired))
	mux.HandleFunc("PUT /groups/{name}/scaling-activities", s.withAuth(s.handlePutScalingActivities))
	mux.HandleFunc("POST /groups/{name}/actions/launch-protected", s.withAuth(s.handleLaunchProtected))
	mux.HandleFunc("POST /groups/reset", s.withAuth(s.handleResetGroups))
	mux.HandleFunc("GET /groups/{name}/report", s.withAuth(s.handleGroupReport))
	mux.HandleFunc("GET /groups/{name}/audit", s.withAuth(s.handleGroupAudit))

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth fails closed: a request the Authenticator rejects never reaches
// the handler (spec.md §7's "admin endpoints fail closed", extended here to
// the one side-car endpoint spec.md §6 marks as authenticated).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Authenticate(r) {
			writeJSON(w, s.log, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

// writeError maps an autoscalererr sentinel to the status code spec.md §7
// assigns it, failing closed to 500 for anything unrecognized.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, autoscalererr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, autoscalererr.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, log, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// verdictFor computes the {shutdown, reconfigure} response every side-car
// endpoint returns.
func (s *Server) verdictFor(ctx context.Context, instanceID string) (model.PollVerdict, error) {
	shuttingDown, err := s.shutdown.GetShutdownStatus(ctx, instanceID)
	if err != nil {
		return model.PollVerdict{}, err
	}
	reconfDate, err := s.reconfigure.GetReconfigureDate(ctx, instanceID)
	if err != nil {
		return model.PollVerdict{}, err
	}
	return model.PollVerdict{Shutdown: shuttingDown, Reconfigure: reconfDate != nil}, nil
}
