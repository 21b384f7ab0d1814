package api

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"log"
	"meet-backend/internal/auth"
	"meet-backend/internal/config"
	"meet-backend/internal/database"
	"meet-backend/internal/websocket"
	"meet-backend/internal/worker"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	testJWTSecret      = "api_test_secret"
	testSharedSecret   = "api_test_shared_secret"
	testPaddleSecret   = "pdl_ntfset_test"
	testKeycloakSecret = "kc_webhook_test"
)

var (
	testStore          *database.Store
	testDiscordPrivate ed25519.PrivateKey
	testDiscordPublic  ed25519.PublicKey
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:14-alpine",
		postgres.WithDatabase("test_api_db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		log.Fatalf("Could not start postgres: %s", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("Could not get connection string: %s", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	schema, err := os.ReadFile("../../db/init.sql")
	if err != nil {
		log.Fatalf("Could not read schema file: %s", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("Could not apply schema: %s", err)
	}

	testStore = database.NewStore(pool)

	testDiscordPublic, testDiscordPrivate, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("Could not generate interaction key: %s", err)
	}

	code := m.Run()

	pool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("Could not terminate postgres: %s", err)
	}
	os.Exit(code)
}

type testEnv struct {
	server   *Server
	identity *fakeIdentity
	billing  *fakeBilling
	contacts *fakeContacts
	stopHub  func()
}

// newTestServer builds a server over the shared database with fresh fakes
// and its own background runner, drained when the test ends.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWT:          config.JWTConfig{Secret: testJWTSecret},
		Paddle:       config.PaddleConfig{WebhookSecret: testPaddleSecret},
		Keycloak:     config.KeycloakConfig{WebhookSecret: testKeycloakSecret},
		Discord:      config.DiscordConfig{PublicKey: hex.EncodeToString(testDiscordPublic)},
		SharedSecret: testSharedSecret,
	}

	env := &testEnv{
		identity: newFakeIdentity(),
		billing:  newFakeBilling(),
		contacts: newFakeContacts(),
	}

	log := zap.NewNop()
	runner := worker.NewRunner(log, 5*time.Second)
	hubCtx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(log)
	hubStopped := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubStopped)
	}()
	env.stopHub = func() {
		cancel()
		<-hubStopped
	}

	env.server = NewServer(cfg, log, testStore,
		Providers{Identity: env.identity, Billing: env.billing, Contacts: env.contacts},
		auth.NewVerifier(auth.VerifierConfig{Secret: testJWTSecret}),
		runner, hub)

	t.Cleanup(func() {
		ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = env.server.runner.Wait(ctx)
		cancel()
	})
	return env
}

// drain waits for the scheduled background work of the server and installs
// a fresh runner so later requests can still schedule tasks.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.server.runner.Wait(ctx))
	e.server.runner = worker.NewRunner(zap.NewNop(), 5*time.Second)
}

func testEmail(t *testing.T) string {
	name := strings.ToLower(strings.NewReplacer("/", "-", "_", "-", " ", "-").Replace(t.Name()))
	return name + "@example.com"
}

func createLocalUser(t *testing.T, email string, maxBookings int) {
	t.Helper()
	_, err := testStore.UpsertUser(context.Background(), email)
	require.NoError(t, err)
	_, err = testStore.SetMaxBookings(context.Background(), email, maxBookings)
	require.NoError(t, err)
}

func bearer(t *testing.T, email string) string {
	t.Helper()
	token, err := auth.GenerateJWT(email, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}
