// README: Scenario cases: environment checks, the pickup lifecycle walk, the accept race and throughput checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const benchPassword = "bench-password-1"

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Scenario state shared by the lifecycle cases, in order.
	runID    string
	client   session
	vendorA  session
	vendorB  session
	pickupID string
	offerID  string
}

type session struct {
	ID     string
	Access string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: fmt.Sprintf("%d", time.Now().UnixNano()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return fail("db not configured")
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return fail(err.Error())
				}
				return pass("")
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "OTP store and quota reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return fail("redis not configured")
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return fail(err.Error())
				}
				return pass("")
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the initial migration are present",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return skip("db not configured")
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return fail(err.Error())
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return fail(err.Error())
					}
					if !exists {
						return fail("missing table: " + t)
					}
				}
				return pass(fmt.Sprintf("tables=%d", len(tables)))
			},
		},
		{
			Name:  "API: health",
			Focus: "server reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodGet, "/health", "", nil), http.StatusOK)
			},
		},

		// Accounts
		{
			Name:  "Account: register client",
			Focus: "201 with snapshot and tokens",
			Run: func(ctx context.Context, r *Runner) Result {
				s, res := r.register(ctx, "client", r.email("client"))
				r.client = s
				return res
			},
		},
		{
			Name:  "Account: register vendors A and B",
			Focus: "two independent sellers",
			Run: func(ctx context.Context, r *Runner) Result {
				a, res := r.register(ctx, "seller", r.email("vendor-a"))
				if res.Status != "PASS" {
					return res
				}
				b, res := r.register(ctx, "seller", r.email("vendor-b"))
				r.vendorA, r.vendorB = a, b
				return res
			},
		},
		{
			Name:  "Account: merge with wrong password -> 400",
			Focus: "existing email, wrong password",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/register/seller", "", map[string]any{
					"email":    r.email("client"),
					"password": "not-the-password",
				}), http.StatusBadRequest)
			},
		},
		{
			Name:  "Account: login wrong password -> 401",
			Focus: "invalid credentials",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/login", "", map[string]any{
					"email":    r.email("client"),
					"password": "nope-nope-nope",
				}), http.StatusUnauthorized)
			},
		},
		{
			Name:  "Access: vendor route as client -> 403",
			Focus: "role gate",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodGet, "/api/pickup/available", r.client.Access, nil), http.StatusForbidden)
			},
		},

		// Lifecycle
		{
			Name:  "Pickup: create -> pending",
			Focus: "201 with request_id",
			Run: func(ctx context.Context, r *Runner) Result {
				id, res := r.createPickup(ctx, r.client)
				r.pickupID = id
				return res
			},
		},
		{
			Name:  "Pickup: submit contact",
			Focus: "code stored even when dispatch fails",
			Run: func(ctx context.Context, r *Runner) Result {
				rep := r.do(ctx, http.MethodPost, "/api/pickup/contact", r.client.Access, map[string]any{
					"request_id":    r.pickupID,
					"contact_name":  "Bench Client",
					"contact_phone": r.phone(),
				})
				return expect(rep, http.StatusOK, http.StatusServiceUnavailable, http.StatusTooManyRequests)
			},
		},
		{
			Name:  "Pickup: verify wrong code -> 400, still pending",
			Focus: "code mismatch leaves state untouched",
			Run: func(ctx context.Context, r *Runner) Result {
				code, err := r.storedCode(ctx, r.pickupID)
				if err != nil {
					return fail(err.Error())
				}
				rep := r.do(ctx, http.MethodPost, "/api/pickup/verify-otp", "", map[string]any{
					"request_id": r.pickupID,
					"otp":        wrongCode(code),
				})
				if res := expect(rep, http.StatusBadRequest); res.Status != "PASS" {
					return res
				}
				return r.expectStatus(ctx, r.pickupID, "pending")
			},
		},
		{
			Name:  "Pickup: verify stored code -> confirmed",
			Focus: "code read back from Postgres",
			Run: func(ctx context.Context, r *Runner) Result {
				code, err := r.storedCode(ctx, r.pickupID)
				if err != nil {
					return fail(err.Error())
				}
				rep := r.do(ctx, http.MethodPost, "/api/pickup/verify-otp", "", map[string]any{
					"request_id": r.pickupID,
					"otp":        code,
				})
				if res := expect(rep, http.StatusOK); res.Status != "PASS" {
					return res
				}
				return r.expectStatus(ctx, r.pickupID, "confirmed")
			},
		},
		{
			Name:  "Pickup: vendor A accepts -> vendor_accepted",
			Focus: "pool claim",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/pickup/accept/"+r.pickupID, r.vendorA.Access, nil), http.StatusOK)
			},
		},
		{
			Name:  "Pickup: vendor B accepts same id -> 404",
			Focus: "taken pickups leave the pool",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/pickup/accept/"+r.pickupID, r.vendorB.Access, nil), http.StatusNotFound)
			},
		},
		{
			Name:  "Chat: vendor B cannot read thread -> 403",
			Focus: "participants only",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodGet, "/api/pickup/chat/"+r.pickupID, r.vendorB.Access, nil), http.StatusForbidden)
			},
		},
		{
			Name:  "Chat: vendor A posts offer",
			Focus: "offer message",
			Run: func(ctx context.Context, r *Runner) Result {
				rep := r.do(ctx, http.MethodPost, "/api/pickup/chat/"+r.pickupID, r.vendorA.Access, map[string]any{
					"message":      "Can do 450 for the lot",
					"is_offer":     true,
					"offer_amount": 450,
				})
				r.offerID = rep.str("id")
				return expect(rep, http.StatusCreated)
			},
		},
		{
			Name:  "Chat: offer sender cannot accept own offer -> 403",
			Focus: "counterparty resolves",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/pickup/offer/"+r.offerID+"/accept", r.vendorA.Access, nil), http.StatusForbidden)
			},
		},
		{
			Name:  "Chat: client accepts offer, second resolve -> 409",
			Focus: "offers resolve once",
			Run: func(ctx context.Context, r *Runner) Result {
				if res := expect(r.do(ctx, http.MethodPost, "/api/pickup/offer/"+r.offerID+"/accept", r.client.Access, nil), http.StatusOK); res.Status != "PASS" {
					return res
				}
				return expect(r.do(ctx, http.MethodPost, "/api/pickup/offer/"+r.offerID+"/reject", r.client.Access, nil), http.StatusConflict)
			},
		},
		{
			Name:  "Pickup: client approves -> scheduled",
			Focus: "approval",
			Run: func(ctx context.Context, r *Runner) Result {
				if res := expect(r.do(ctx, http.MethodPost, "/api/pickup/approve/"+r.pickupID, r.client.Access, nil), http.StatusOK); res.Status != "PASS" {
					return res
				}
				return r.expectStatus(ctx, r.pickupID, "scheduled")
			},
		},
		{
			Name:  "Pickup: cancel scheduled -> 400",
			Focus: "cancel only from pending",
			Run: func(ctx context.Context, r *Runner) Result {
				if res := expect(r.do(ctx, http.MethodPost, "/api/pickup/cancel/"+r.pickupID, r.client.Access, nil), http.StatusBadRequest); res.Status != "PASS" {
					return res
				}
				return r.expectStatus(ctx, r.pickupID, "scheduled")
			},
		},
		{
			Name:  "Pickup: vendor A completes -> completed",
			Focus: "completion",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodPost, "/api/pickup/complete/"+r.pickupID, r.vendorA.Access, nil), http.StatusOK)
			},
		},
		{
			Name:  "Consistency: events and status_version agree",
			Focus: "one event row per transition",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return skip("db not configured")
				}
				var version, events int
				var agreed *int64
				err := r.db.QueryRow(ctx, `
					SELECT p.status_version, p.agreed_price,
					       (SELECT count(*) FROM pickup_state_events e WHERE e.pickup_id = p.id)
					FROM pickup_requests p WHERE p.id = $1`, r.pickupID,
				).Scan(&version, &agreed, &events)
				if err != nil {
					return fail(err.Error())
				}
				// none->pending, ->confirmed, ->vendor_accepted, ->scheduled, ->completed
				if events != 5 {
					return fail(fmt.Sprintf("events=%d want 5", events))
				}
				if agreed == nil || *agreed != 450 {
					return fail("agreed price not recorded")
				}
				return pass(fmt.Sprintf("status_version=%d", version))
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: many vendors accept one pickup",
			Focus: "exactly one winner",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.concurrentAccept(ctx)
			},
		},

		// Performance
		{
			Name:  "Perf: vendor pool listing throughput",
			Focus: "GET /api/pickup/available",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.perfLoad(ctx, http.MethodGet, "/api/pickup/available", r.vendorB.Access)
			},
		},
	}
}

type reply struct {
	Code    int
	Body    []byte
	Latency time.Duration
	Err     error
}

func (p reply) str(key string) string {
	var m map[string]any
	if json.Unmarshal(p.Body, &m) != nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r *Runner) do(ctx context.Context, method, path, token string, body any) reply {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return reply{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return reply{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return reply{Code: resp.StatusCode, Body: b, Latency: time.Since(start)}
}

func (r *Runner) email(who string) string {
	return fmt.Sprintf("%s+%s@bench.scrapyard.test", who, r.runID)
}

// phone is unique per run so reruns stay inside the per-contact send quota.
func (r *Runner) phone() string {
	return "9" + r.runID[len(r.runID)-9:]
}

func (r *Runner) register(ctx context.Context, role, email string) (session, Result) {
	rep := r.do(ctx, http.MethodPost, "/api/register/"+role, "", map[string]any{
		"email":        email,
		"password":     benchPassword,
		"full_name":    "Bench " + role,
		"phone_number": r.phone(),
	})
	res := expect(rep, http.StatusCreated)
	if res.Status != "PASS" {
		return session{}, res
	}
	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Access string `json:"access"`
	}
	if err := json.Unmarshal(rep.Body, &out); err != nil {
		return session{}, fail(err.Error())
	}
	return session{ID: out.User.ID, Access: out.Access}, res
}

func (r *Runner) createPickup(ctx context.Context, client session) (string, Result) {
	rep := r.do(ctx, http.MethodPost, "/api/pickup/create", client.Access, map[string]any{
		"address":     "12 MG Road, Bengaluru",
		"latitude":    12.9716,
		"longitude":   77.5946,
		"date":        time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
		"time_slot":   "10:00-12:00",
		"category":    "metal",
		"quantity_kg": 12.5,
	})
	return rep.str("request_id"), expect(rep, http.StatusCreated)
}

// confirmPickup drives a fresh pickup to confirmed through the public API.
func (r *Runner) confirmPickup(ctx context.Context) (string, error) {
	id, res := r.createPickup(ctx, r.client)
	if res.Status != "PASS" {
		return "", fmt.Errorf("create: %s", res.Note)
	}
	r.do(ctx, http.MethodPost, "/api/pickup/contact", r.client.Access, map[string]any{
		"request_id":    id,
		"contact_phone": r.phone(),
	})
	code, err := r.storedCode(ctx, id)
	if err != nil {
		return "", err
	}
	rep := r.do(ctx, http.MethodPost, "/api/pickup/verify-otp", "", map[string]any{"request_id": id, "otp": code})
	if rep.Code != http.StatusOK {
		return "", fmt.Errorf("verify: status=%d", rep.Code)
	}
	return id, nil
}

func (r *Runner) storedCode(ctx context.Context, id string) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("db not configured")
	}
	var code *string
	if err := r.db.QueryRow(ctx, "SELECT otp_code FROM pickup_requests WHERE id=$1", id).Scan(&code); err != nil {
		return "", err
	}
	if code == nil || *code == "" {
		return "", fmt.Errorf("no code stored for %s", id)
	}
	return *code, nil
}

func (r *Runner) expectStatus(ctx context.Context, id, want string) Result {
	if r.db == nil {
		return pass("db not configured; status unchecked")
	}
	var got string
	if err := r.db.QueryRow(ctx, "SELECT status FROM pickup_requests WHERE id=$1", id).Scan(&got); err != nil {
		return fail(err.Error())
	}
	if got != want {
		return fail(fmt.Sprintf("status=%s want %s", got, want))
	}
	return pass("status=" + got)
}

func (r *Runner) concurrentAccept(ctx context.Context) Result {
	id, err := r.confirmPickup(ctx)
	if err != nil {
		return fail(err.Error())
	}
	vendors := make([]session, 0, r.cfg.Racers)
	for i := 0; i < r.cfg.Racers; i++ {
		s, res := r.register(ctx, "seller", r.email(fmt.Sprintf("racer-%d", i)))
		if res.Status != "PASS" {
			return res
		}
		vendors = append(vendors, s)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		succ    int
		unknown []int
	)
	start := make(chan struct{})
	for _, v := range vendors {
		wg.Add(1)
		go func(v session) {
			defer wg.Done()
			<-start
			rep := r.do(ctx, http.MethodPost, "/api/pickup/accept/"+id, v.Access, nil)
			mu.Lock()
			defer mu.Unlock()
			switch rep.Code {
			case http.StatusOK:
				succ++
			case http.StatusNotFound, http.StatusConflict:
			default:
				unknown = append(unknown, rep.Code)
			}
		}(v)
	}
	close(start)
	wg.Wait()

	if succ != 1 || len(unknown) > 0 {
		return fail(fmt.Sprintf("success=%d unexpected=%v", succ, unknown))
	}
	if r.db != nil {
		var assigned *string
		if err := r.db.QueryRow(ctx, "SELECT assigned_to FROM pickup_requests WHERE id=$1", id).Scan(&assigned); err != nil {
			return fail(err.Error())
		}
		if assigned == nil {
			return fail("no assignee after race")
		}
	}
	return pass(fmt.Sprintf("success=1 vendors=%d", len(vendors)))
}

func (r *Runner) perfLoad(ctx context.Context, method, path, token string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				rep := r.do(ctx, method, path, token, nil)
				mu.Lock()
				if rep.Err != nil || rep.Code != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return fail("no requests completed")
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return pass(fmt.Sprintf("rps=%.1f errors=%d", rps, errCount))
}

func expect(rep reply, statuses ...int) Result {
	if rep.Err != nil {
		return fail(rep.Err.Error())
	}
	for _, s := range statuses {
		if rep.Code == s {
			return Result{Status: "PASS", Latency: rep.Latency, Note: fmt.Sprintf("status=%d", rep.Code)}
		}
	}
	return Result{Status: "FAIL", Latency: rep.Latency, Note: fmt.Sprintf("status=%d body=%s", rep.Code, truncate(rep.Body, 160))}
}

func pass(note string) Result { return Result{Status: "PASS", Note: note} }
func fail(note string) Result { return Result{Status: "FAIL", Note: note} }
func skip(note string) Result { return Result{Status: "SKIP", Note: note} }

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
