package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/labledger/api/internal/auth"
	"github.com/labledger/api/internal/handler"
	"github.com/labledger/api/internal/ledger"
	"github.com/labledger/api/internal/middleware"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	jobs     *store.MemoryStore
	ledger   *ledger.Emulator
	analysis *service.AnalysisService
}

// setupApp creates a Fiber app wired like main.go but fully in-process:
// the in-memory job store replaces Redis, the ledger emulator replaces a
// remote node, and the unconfigured clients trigger mock fallbacks.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobs := store.NewMemoryStore()
	emu := ledger.NewEmulator()

	// Rate limiter still takes a Redis client; without a reachable server
	// every increment errors and the limiter lets requests through.
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	validate := validator.New()

	// nil storage and nil task queue → mock locators, jobs stay queued
	analysisService := service.NewAnalysisService(jobs, nil, nil)
	provenanceService := service.NewProvenanceService(jobs, nil, emu)

	analysisHandler := handler.NewAnalysisHandler(analysisService, provenanceService, "")
	artifactHandler := handler.NewArtifactHandler(provenanceService)
	ledgerHandler := handler.NewLedgerHandler(provenanceService, validate)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine": false,
				"r2":     false,
				"ledger": false,
				"auth":   true,
			},
		})
	})

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	analysis := api.Group("/analysis")
	analysis.Post("/submit", rateLimiter.SubmitLimit(10000), analysisHandler.Submit)
	analysis.Get("/status/:jobId", analysisHandler.Status)
	analysis.Get("/result/:jobId", analysisHandler.Result)

	artifactGroup := api.Group("/artifact")
	artifactGroup.Post("/package/:jobId", artifactHandler.Package)
	artifactGroup.Post("/verify", rateLimiter.VerifyLimit(10000), artifactHandler.Verify)

	ledgerGroup := api.Group("/ledger", rateLimiter.LedgerLimit(10000))
	ledgerGroup.Post("/projects", ledgerHandler.CreateProject)
	ledgerGroup.Get("/projects/:projectId/log", ledgerHandler.ProjectLog)
	ledgerGroup.Get("/projects/:projectId/view/:kind", ledgerHandler.ProjectView)
	ledgerGroup.Post("/log", ledgerHandler.AppendLog)
	ledgerGroup.Get("/tx/:txId", ledgerHandler.Transaction)

	return &testApp{
		app:      app,
		jobs:     jobs,
		ledger:   emu,
		analysis: analysisService,
	}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "labledger-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doMultipartRequest performs an authenticated multipart request with the
// given form fields and one file part.
func doMultipartRequest(t *testing.T, app *fiber.App, path string, fields map[string]string, fileField, filename string, fileData []byte) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := fw.Write(fileData); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
