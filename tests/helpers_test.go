package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/veilvote/veilvote/api/client"
	"github.com/veilvote/veilvote/crypto/ethereum"
	"github.com/veilvote/veilvote/service"
	"github.com/veilvote/veilvote/storage"
	"github.com/veilvote/veilvote/util"
)

// testRotation keeps every epoch live for the whole test run.
const testRotation = time.Hour

// setupAPI creates and starts a new API service for testing.
func setupAPI(ctx context.Context, db *storage.Storage) (*service.APIService, error) {
	tmpPort := util.RandomInt(40000, 60000)

	api := service.NewAPI(db, "127.0.0.1", tmpPort, "", testRotation)
	if err := api.Start(ctx); err != nil {
		return nil, err
	}

	// Wait for the HTTP server to start
	time.Sleep(500 * time.Millisecond)
	return api, nil
}

// NewTestClient creates a new API client for testing.
func NewTestClient(port int) (*client.HTTPclient, error) {
	return client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// NewTestSigner creates and initializes a new ethereum signer for testing.
func NewTestSigner() (*ethereum.SignKeys, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	return signer, nil
}

// NewTestService builds the whole pipeline on an in-memory store and
// starts its API server.
func NewTestService(t *testing.T, ctx context.Context) (*service.APIService, *storage.Storage) {
	kv := metadb.NewTest(t)
	stg := storage.New(kv)
	t.Cleanup(func() { stg.Close() })

	api, err := setupAPI(ctx, stg)
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(api.Stop)

	return api, stg
}
