// Command moderationd runs the MercyB real-time moderation service. It
// consumes check requests from the chat layer over NATS, runs each one
// through the decision engine, persists the outcome, and publishes the
// decision back to the requesting user's subject. Suspensions are mirrored
// into Redis and alerted to the moderator console.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ChauDoan21165/MercyB-sub006/internal/messaging"
	"github.com/ChauDoan21165/MercyB-sub006/internal/metrics"
	"github.com/ChauDoan21165/MercyB-sub006/internal/moderation"
	"github.com/ChauDoan21165/MercyB-sub006/internal/policy"
	"github.com/ChauDoan21165/MercyB-sub006/internal/ratelimit"
	"github.com/ChauDoan21165/MercyB-sub006/internal/suspension"
	"github.com/ChauDoan21165/MercyB-sub006/internal/violation"
)

// decisionMessage is the wire envelope published to
// moderation.decision.<user_id> for every processed check.
type decisionMessage struct {
	UserID string                     `json:"user_id"`
	Result *moderation.DecisionResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// errThrottled is published when a check is rejected by the rate limiter, so
// the chat layer can tell "throttled" from a reply that was lost.
const errThrottled = "rate limited: too many checks, retry later"

// handleCheck runs one inbound check payload through the rate limiter and the
// engine and returns the envelope to publish on the user's decision subject.
// A nil return means there is no caller to answer: the payload was
// unparseable or carried no user id.
func handleCheck(ctx context.Context, data []byte, allow func(context.Context, string) bool, decide func(context.Context, moderation.CheckRequest) (*moderation.DecisionResult, error)) *decisionMessage {
	var req moderation.CheckRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[moderationd] failed to unmarshal request: %v", err)
		return nil
	}

	if req.UserID != "" && !allow(ctx, req.UserID) {
		log.Printf("[moderationd] rate limited user=%s", req.UserID)
		return &decisionMessage{UserID: req.UserID, Error: errThrottled}
	}

	result, err := decide(ctx, req)
	msg := &decisionMessage{UserID: req.UserID, Result: result}
	if err != nil {
		// The caller must see store failures as a hard failure of the
		// check, never as an implicit allow.
		msg.Error = err.Error()
		if errors.Is(err, moderation.ErrInvalidInput) {
			log.Printf("[moderationd] invalid request user=%s: %v", req.UserID, err)
		} else {
			log.Printf("[moderationd] decision failed user=%s: %v", req.UserID, err)
		}
	}
	if req.UserID == "" {
		return nil
	}
	return msg
}

// natsAlerter adapts the NATS client to the engine's Alerter interface.
type natsAlerter struct {
	client *messaging.NATSClient
}

func (a *natsAlerter) EmitSuspensionAlert(_ context.Context, alert moderation.SuspensionAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return a.client.PublishSuspensionAlert(data)
}

func main() {
	log.Println("Starting MercyB moderation service...")

	// --- Policy ---
	pol := policy.Default()
	policyPath := os.Getenv("POLICY_PATH")
	if policyPath != "" {
		var err error
		pol, err = policy.Load(policyPath)
		if err != nil {
			// Refuse to run with a partial or invalid policy.
			log.Fatalf("failed to load policy: %v", err)
		}
	} else {
		log.Printf("[policy] POLICY_PATH not set, using built-in default policy")
	}
	log.Printf("[policy] loaded version=%s rules=%d window=%s", pol.Version, len(pol.Rules()), pol.Window)

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Violation store ---
	var store moderation.Store
	var db *sql.DB
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL != "" {
		if err := violation.RunMigrations(databaseURL); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(ctx); err != nil {
			cancel()
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		cancel()
		store = violation.NewPostgresStore(db)
	} else {
		// Violation history evaporates on restart; fine for local development,
		// never for production.
		log.Printf("[store] DATABASE_URL not set, using in-memory store")
		store = violation.NewMemoryStore()
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "mercyb-moderationd"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Engine ---
	suspensionCache := suspension.NewStore(rdb)
	engine := moderation.NewEngine(pol, store, &natsAlerter{client: natsClient}, suspensionCache)
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			engine.SetStoreTimeout(d)
		}
	}

	limiter := ratelimit.NewLimiter(rdb)

	// --- Check subscription ---
	allow := func(ctx context.Context, userID string) bool {
		allowed, _ := limiter.Allow(ctx, userID, ratelimit.RuleCheck)
		return allowed
	}
	err = natsClient.SubscribeModerationCheck(func(data []byte) {
		msg := handleCheck(context.Background(), data, allow, engine.Decide)
		if msg == nil {
			return
		}
		out, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[moderationd] failed to marshal decision: %v", err)
			return
		}
		if err := natsClient.PublishDecision(msg.UserID, out); err != nil {
			log.Printf("[moderationd] failed to publish decision user=%s: %v", msg.UserID, err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	// --- Metrics ---
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	// --- Policy hot reload on SIGHUP ---
	if policyPath != "" {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for range hupCh {
				fresh, err := policy.Load(policyPath)
				if err != nil {
					// Keep running with the last good policy.
					log.Printf("[policy] reload failed, keeping current policy: %v", err)
					continue
				}
				engine.SetPolicy(fresh)
			}
		}()
	}

	log.Printf("MercyB moderation service running")
	log.Printf("  policy_version: %s", pol.Version)
	log.Printf("  redis_addr:     %s", redisAddr)
	log.Printf("  nats_url:       %s", natsConfig.URL)
	log.Printf("  metrics_addr:   %s", metricsAddr)
	if databaseURL != "" {
		log.Printf("  store:          postgres")
	} else {
		log.Printf("  store:          memory")
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	rdb.Close()
	if db != nil {
		db.Close()
	}
}
