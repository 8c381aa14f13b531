package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/ballotbox"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/policy"
	stg "github.com/veilvote/veilvote/storage"
)

// maxRequestsPerIPHour caps how many requests one client address may make
// across all endpoints within a sliding hour. Per-user issuance budgets
// are enforced separately by the policy package.
const maxRequestsPerIPHour = 100

// Roles the server can play. The issuing authority learns who users are
// but never sees ballots; the poll operator sees ballots but only under
// pseudonym tags. Running them as separate instances keeps that split
// real at the deployment level; RoleBoth collapses it for single-node
// setups and tests.
const (
	RoleIssuer   = "ia"
	RoleOperator = "po"
	RoleBoth     = "both"
)

// APIConfig type represents the configuration for the API HTTP server.
// It wires the already constructed services together; the API owns none
// of them.
type APIConfig struct {
	Host      string
	Port      int
	Role      string // RoleIssuer, RoleOperator or RoleBoth; empty means both
	Storage   *stg.Storage
	Issuer    *issuer.Issuer
	Ballotbox *ballotbox.Ballotbox
	Trail     *audit.Trail // Optional: defaults to a fresh trail
}

// API type represents the API HTTP server exposing the issuer, the ballot
// box and the commitment log.
type API struct {
	router    *chi.Mux
	role      string
	storage   *stg.Storage
	issuer    *issuer.Issuer
	ballotbox *ballotbox.Ballotbox
	trail     *audit.Trail
	ipLimiter *policy.RateLimiter
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Issuer == nil {
		return nil, fmt.Errorf("missing issuer instance")
	}
	if conf.Ballotbox == nil {
		return nil, fmt.Errorf("missing ballot box instance")
	}
	role := conf.Role
	if role == "" {
		role = RoleBoth
	}
	if role != RoleIssuer && role != RoleOperator && role != RoleBoth {
		return nil, fmt.Errorf("unknown API role %q", conf.Role)
	}
	trail := conf.Trail
	if trail == nil {
		trail = audit.NewTrail(audit.DefaultCapacity)
	}
	a := &API{
		role:      role,
		storage:   conf.Storage,
		issuer:    conf.Issuer,
		ballotbox: conf.Ballotbox,
		trail:     trail,
		ipLimiter: policy.NewRateLimiter(time.Hour),
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// serves reports whether this instance plays the given role.
func (a *API) serves(role string) bool {
	return a.role == RoleBoth || a.role == role
}

// registerHandlers registers the API handlers for the configured role.
// The ping and audit endpoints are served by every role: each instance
// audits its own actions.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	if a.serves(RoleIssuer) {
		log.Infow("register handler", "endpoint", UsersEndpoint, "method", "POST")
		a.router.Post(UsersEndpoint, a.registerUser)
		log.Infow("register handler", "endpoint", TokensEndpoint, "method", "POST")
		a.router.Post(TokensEndpoint, a.issueToken)
		log.Infow("register handler", "endpoint", KeysEndpoint, "method", "GET")
		a.router.Get(KeysEndpoint, a.issuerKey)
		log.Infow("register handler", "endpoint", EpochsEndpoint, "method", "GET")
		a.router.Get(EpochsEndpoint, a.epochs)
	}
	if a.serves(RoleOperator) {
		log.Infow("register handler", "endpoint", PollsEndpoint, "method", "POST")
		a.router.Post(PollsEndpoint, a.newPoll)
		log.Infow("register handler", "endpoint", PollsEndpoint, "method", "GET")
		a.router.Get(PollsEndpoint, a.polls)
		log.Infow("register handler", "endpoint", PollEndpoint, "method", "GET")
		a.router.Get(PollEndpoint, a.poll)
		log.Infow("register handler", "endpoint", PollStatusEndpoint, "method", "POST")
		a.router.Post(PollStatusEndpoint, a.changePollStatus)
		log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "POST")
		a.router.Post(PollVotesEndpoint, a.submitVote)
		log.Infow("register handler", "endpoint", PollRootEndpoint, "method", "GET")
		a.router.Get(PollRootEndpoint, a.pollRoot)
		log.Infow("register handler", "endpoint", PollConsistencyEndpoint, "method", "GET")
		a.router.Get(PollConsistencyEndpoint, a.pollConsistency)
		log.Infow("register handler", "endpoint", PollTallyEndpoint, "method", "GET")
		a.router.Get(PollTallyEndpoint, a.pollTally)
		log.Infow("register handler", "endpoint", ReceiptsVerifyEndpoint, "method", "POST")
		a.router.Post(ReceiptsVerifyEndpoint, a.verifyReceipt)
	}
	log.Infow("register handler", "endpoint", AuditEndpoint, "method", "GET")
	a.router.Get(AuditEndpoint, a.auditEvents)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.Use(a.rateLimitByIP)

	// Register the API handlers
	a.registerHandlers()
}

// rateLimitByIP rejects clients that exceed the per-address request
// budget. The ping endpoint stays open so health checks never throttle.
func (a *API) rateLimitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PingEndpoint && !a.ipLimiter.Allow(clientIP(r), maxRequestsPerIPHour) {
			ErrRateLimited.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
