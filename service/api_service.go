package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veilvote/veilvote/api"
	"github.com/veilvote/veilvote/audit"
	"github.com/veilvote/veilvote/ballotbox"
	"github.com/veilvote/veilvote/issuer"
	"github.com/veilvote/veilvote/policy"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/verifier"
)

// APIService wires the whole token pipeline (policy, issuer, verifier,
// ballot box, audit trail) on top of a storage instance and manages the
// HTTP API server serving it.
type APIService struct {
	storage  *storage.Storage
	issuer   *issuer.Issuer
	api      *api.API
	mu       sync.Mutex
	cancel   context.CancelFunc
	host     string
	port     int
	role     string
	rotation time.Duration
}

// NewAPI creates a new APIService instance. A rotation of zero falls back
// to the issuer default; an empty role serves both the issuing-authority
// and poll-operator endpoints.
func NewAPI(storage *storage.Storage, host string, port int, role string, rotation time.Duration) *APIService {
	return &APIService{
		storage:  storage,
		host:     host,
		port:     port,
		role:     role,
		rotation: rotation,
	}
}

// Start builds the service pipeline and begins the API server. It returns
// an error if the service is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)

	pol := policy.New(as.storage)
	iss, err := issuer.New(as.storage, pol, as.rotation)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create issuer: %w", err)
	}
	if err := iss.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start issuer: %w", err)
	}
	ver, err := verifier.New(iss, as.storage)
	if err != nil {
		iss.Stop()
		cancel()
		return fmt.Errorf("failed to create verifier: %w", err)
	}
	box, err := ballotbox.New(as.storage, ver)
	if err != nil {
		iss.Stop()
		cancel()
		return fmt.Errorf("failed to create ballot box: %w", err)
	}

	as.api, err = api.New(&api.APIConfig{
		Host:      as.host,
		Port:      as.port,
		Role:      as.role,
		Storage:   as.storage,
		Issuer:    iss,
		Ballotbox: box,
		Trail:     audit.NewTrail(audit.DefaultCapacity),
	})
	if err != nil {
		iss.Stop()
		cancel()
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.issuer = iss
	as.cancel = cancel

	return nil
}

// Stop halts the API server and the background workers. The storage is
// owned by the caller and stays open, so the service can be restarted on
// top of it.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return
	}
	as.issuer.Stop()
	as.cancel()
	as.cancel = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
