// Package integration provides end-to-end tests of the dormkeys API.
// Every flow runs against SQLite and, when their servers are reachable, PostgreSQL and MySQL.
package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/dormkeys/internal/app"
	"github.com/allisson/dormkeys/internal/config"
	"github.com/allisson/dormkeys/internal/httputil"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/testutil"
)

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	server    *httptest.Server
	dbDriver  string
}

var drivers = []struct {
	name     string
	dbDriver string
}{
	{"SQLite", "sqlite"},
	{"PostgreSQL", "postgres"},
	{"MySQL", "mysql"},
}

// makeRequest performs an HTTP request as userID and returns the response and body.
func (ctx *integrationTestContext) makeRequest(
	t *testing.T,
	method, path, userID string,
	body any,
) (*http.Response, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ctx.server.URL+path, bodyReader)
	require.NoError(t, err, "failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(httputil.UserIDHeader, userID)
	}
	req.Header.Set("User-Agent", "dormkeys-integration")

	client := &http.Client{Timeout: 10 * time.Second}
	//nolint:gosec // controlled test environment with localhost URLs
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to perform request")

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	if closeErr := resp.Body.Close(); closeErr != nil {
		t.Logf("Warning: failed to close response body: %v", closeErr)
	}

	return resp, respBody
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func randomKey(t *testing.T, n int) string {
	t.Helper()
	key := make([]byte, n)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

// integrationConfig returns a configuration for dbDriver at dsn with a fresh KMS key
// and audit signing key.
func integrationConfig(t *testing.T, dbDriver, dsn string) *config.Config {
	t.Helper()

	kmsKey := make([]byte, 32)
	_, err := rand.Read(kmsKey)
	require.NoError(t, err)

	return &config.Config{
		DBDriver:                dbDriver,
		DBConnectionString:      dsn,
		DBMaxOpenConnections:    10,
		DBMaxIdleConnections:    5,
		DBConnMaxLifetime:       time.Hour,
		ServerHost:              "localhost",
		ServerPort:              8080,
		LogLevel:                "error",
		KMSKeyURI:               "base64key://" + base64.URLEncoding.EncodeToString(kmsKey),
		AuditSigningKey:         randomKey(t, 32),
		KDFIterations:           1000,
		DataEncryptionAlgorithm: "aes-gcm",
		DataBatchConcurrency:    4,
		OutboxInterval:          time.Second,
		OutboxBatchSize:         50,
		OutboxMaxRetries:        3,
		OutboxReEncryptOnRotate: true,
		OutboxNATSSubjectPrefix: "dormkeys.events",
	}
}

// setupDatabase migrates a database for dbDriver and returns it with the DSN a
// container should open. Server-backed drivers skip when unreachable.
func setupDatabase(t *testing.T, dbDriver string) (*sql.DB, string) {
	t.Helper()

	switch dbDriver {
	case "postgres":
		return testutil.SetupPostgresDB(t), testutil.GetPostgresTestDSN()
	case "mysql":
		return testutil.SetupMySQLDB(t), testutil.GetMySQLTestDSN()
	default:
		dsn := testutil.SQLiteDSN(t.TempDir())
		return testutil.SetupSQLiteDBAt(t, dsn), dsn
	}
}

// setupIntegrationTest initializes all components for integration testing.
func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, dsn := setupDatabase(t, dbDriver)
	container := app.NewContainer(integrationConfig(t, dbDriver, dsn))

	httpSrv, err := container.HTTPServer()
	require.NoError(t, err, "failed to get HTTP server")

	handler := httpSrv.GetHandler()
	require.NotNil(t, handler, "handler should not be nil after SetupRouter")

	testServer := httptest.NewServer(handler)

	return &integrationTestContext{
		container: container,
		db:        db,
		server:    testServer,
		dbDriver:  dbDriver,
	}
}

// teardownIntegrationTest cleans up all resources.
func teardownIntegrationTest(t *testing.T, ctx *integrationTestContext) {
	t.Helper()

	if ctx.server != nil {
		ctx.server.Close()
	}

	if ctx.container != nil {
		if err := ctx.container.Shutdown(context.Background()); err != nil {
			t.Logf("Warning: container shutdown error: %v", err)
		}
	}
}

func TestIntegration_Health_BasicChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, tc := range drivers {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			resp, body := ctx.makeRequest(t, http.MethodGet, "/health", "", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "healthy", decode(t, body)["status"])

			resp, body = ctx.makeRequest(t, http.MethodGet, "/ready", "", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "ready", decode(t, body)["status"])
		})
	}
}

// TestIntegration_KeyAndData_CompleteFlow walks a user through provisioning, storing
// data, rotating, relaying the rotation event and revoking.
func TestIntegration_KeyAndData_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	const userID = "resident-1001"

	for _, tc := range drivers {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			var firstKeyID, firstRawKey, secondRawKey string

			t.Run("01_GenerateKey", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/keys", userID, map[string]any{})
				require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

				out := decode(t, body)
				assert.Equal(t, float64(1), out["key_version"])
				firstKeyID = out["key_id"].(string)
				firstRawKey = out["raw_key"].(string)

				resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/keys", userID, map[string]any{})
				assert.Equal(t, http.StatusConflict, resp.StatusCode)
			})

			t.Run("02_VerifyKey", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/keys/verify", userID,
					map[string]any{"key_proof": firstRawKey})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				assert.Equal(t, true, decode(t, body)["success"])

				resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/keys/verify", userID,
					map[string]any{"key_proof": randomKey(t, 64)})
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			})

			t.Run("03_SaveAndRead", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPut, "/v1/data/profile/p1", userID, map[string]any{
					"data":     map[string]any{"name": "Ana", "room": 12},
					"metadata": map[string]any{"source": "integration"},
				})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				out := decode(t, body)
				assert.Equal(t, float64(1), out["master_key_version"])
				assert.Len(t, out["data_hash"], 64)

				resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/data/profile/p1", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				out = decode(t, body)
				assert.Equal(t, map[string]any{"name": "Ana", "room": float64(12)}, out["data"])
				assert.Equal(t, map[string]any{"source": "integration"}, out["metadata"])
			})

			t.Run("04_RecordsAreUserScoped", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodGet, "/v1/data/profile/p1", "resident-2002", nil)
				assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
			})

			t.Run("05_RotateKey", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/keys/rotate", userID,
					map[string]any{"reason": "scheduled"})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

				out := decode(t, body)
				assert.Equal(t, float64(2), out["key_version"])
				assert.Equal(t, firstKeyID, out["previous_key_id"])
				secondRawKey = out["raw_key"].(string)

				resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/keys/latest", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, float64(2), decode(t, body)["key_version"])
			})

			t.Run("06_OldVersionStillReadable", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/data/profile/p1", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				assert.Equal(t, float64(1), decode(t, body)["master_key_version"])
			})

			t.Run("07_VerifyAfterRotation", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodPost, "/v1/keys/verify", userID,
					map[string]any{"key_proof": firstRawKey})
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/keys/verify", userID,
					map[string]any{"key_proof": secondRawKey})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				out := decode(t, body)
				assert.Equal(t, float64(2), out["key_version"])
				assert.Equal(t, float64(1), out["rotation_count"])
			})

			t.Run("08_BatchRead", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPut, "/v1/data/profile/p2", userID,
					map[string]any{"data": []any{"a", "b"}})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				assert.Equal(t, float64(2), decode(t, body)["master_key_version"])

				resp, body = ctx.makeRequest(t, http.MethodGet, "/v1/data/profile", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				out := decode(t, body)
				assert.Len(t, out["data"], 2)
				assert.Empty(t, out["failed"])
			})

			t.Run("09_RotationEventReEncrypts", func(t *testing.T) {
				outbox, err := ctx.container.OutboxUseCase()
				require.NoError(t, err)
				require.NoError(t, outbox.ProcessEvents(context.Background()))

				repo, err := ctx.container.OutboxRepository()
				require.NoError(t, err)
				pending, err := repo.GetPendingEvents(context.Background(), 50)
				require.NoError(t, err)
				assert.Empty(t, pending)

				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/data/profile/p1", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				assert.Equal(t, float64(2), decode(t, body)["master_key_version"])

				keys, err := ctx.container.MasterKeyUseCase()
				require.NoError(t, err)
				data, err := ctx.container.DataEncryptionUseCase()
				require.NoError(t, err)
				material, err := keys.GetLatest(context.Background(), userID, keyDomain.DefaultKeyType)
				require.NoError(t, err)
				out, err := data.ReEncrypt(context.Background(), userID, material)
				require.NoError(t, err)
				assert.Zero(t, out.ReEncrypted, "the relay already moved p1 forward")
				assert.Zero(t, out.Failed)
			})

			t.Run("10_StatsAndDelete", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/data-stats", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.JSONEq(t, `{"stats":{"profile":2},"total":2}`, string(body))

				resp, body = ctx.makeRequest(t, http.MethodDelete, "/v1/data/profile/p1", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, true, decode(t, body)["deleted"])

				resp, body = ctx.makeRequest(t, http.MethodDelete, "/v1/data/profile/p1", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, false, decode(t, body)["deleted"])
			})

			t.Run("11_RevokeKey", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodPost, "/v1/keys/revoke", userID,
					map[string]any{"reason": "compromise"})
				require.Equal(t, http.StatusNoContent, resp.StatusCode)

				resp, _ = ctx.makeRequest(t, http.MethodGet, "/v1/keys/latest", userID, nil)
				assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

				resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/keys", userID, map[string]any{})
				assert.Equal(t, http.StatusCreated, resp.StatusCode)
			})

			t.Run("12_AuditTrail", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/audit-logs?limit=100", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)

				var out struct {
					Data []struct {
						Action  string `json:"action"`
						Success bool   `json:"success"`
						Signed  bool   `json:"signed"`
					} `json:"data"`
				}
				require.NoError(t, json.Unmarshal(body, &out))

				actions := map[string]int{}
				for _, entry := range out.Data {
					actions[entry.Action]++
					assert.True(t, entry.Signed)
				}
				assert.Equal(t, 3, actions[string(keyDomain.ActionKeyGenerated)], "two successes and one conflict")
				assert.Equal(t, 4, actions[string(keyDomain.ActionKeyVerification)])
				assert.Equal(t, 1, actions[string(keyDomain.ActionKeyRotated)])
				assert.Equal(t, 1, actions[string(keyDomain.ActionKeyRevoked)])
			})
		})
	}
}

// TestIntegration_Device_CompleteFlow covers registration, trust reinforcement,
// verification failures and revocation of a hardware binding.
func TestIntegration_Device_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	const userID = "resident-3003"
	laptop := map[string]any{
		"user_agent":        "Mozilla/5.0 (X11; Linux x86_64)",
		"platform":          "Linux x86_64",
		"cores":             8,
		"memory":            16,
		"screen_resolution": "1920x1080",
		"timezone":          "America/Sao_Paulo",
		"language":          "pt-BR",
		"plugins":           []string{"PDF Viewer"},
		"canvas_hash":       "c4nv45",
		"webgl_hash":        "w3bgl",
		"device_name":       "Study laptop",
	}
	phone := map[string]any{
		"user_agent": "Mozilla/5.0 (iPhone)",
		"platform":   "iPhone",
	}

	for _, tc := range drivers {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			var fingerprint string

			t.Run("01_Register", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/devices", userID,
					map[string]any{"hardware_info": laptop})
				require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

				out := decode(t, body)
				assert.Equal(t, true, out["is_new_binding"])
				assert.InDelta(t, 0.80, out["trust_score"], 0.001)
				fingerprint = out["device_fingerprint"].(string)
				assert.Len(t, fingerprint, 64)

				resp, body = ctx.makeRequest(t, http.MethodPost, "/v1/devices", userID,
					map[string]any{"hardware_info": laptop})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				out = decode(t, body)
				assert.Equal(t, false, out["is_new_binding"])
				assert.Equal(t, fingerprint, out["device_fingerprint"])
				assert.InDelta(t, 0.85, out["trust_score"], 0.001)
			})

			t.Run("02_Verify", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/devices/verify", userID,
					map[string]any{"hardware_info": laptop})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

				resp, body = ctx.makeRequest(t, http.MethodPost, "/v1/devices/verify", userID,
					map[string]any{"hardware_info": phone})
				require.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Equal(t, string(keyDomain.ReasonUnknownDevice), decode(t, body)["reason"])
			})

			t.Run("03_List", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/devices", userID, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)

				var out struct {
					Data []struct {
						DeviceFingerprint string `json:"device_fingerprint"`
						DeviceName        string `json:"device_name"`
					} `json:"data"`
				}
				require.NoError(t, json.Unmarshal(body, &out))
				require.Len(t, out.Data, 1)
				assert.Equal(t, fingerprint, out.Data[0].DeviceFingerprint)
				assert.Equal(t, "Study laptop", out.Data[0].DeviceName)
			})

			t.Run("04_Revoke", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodDelete, "/v1/devices/"+fingerprint, userID, nil)
				require.Equal(t, http.StatusNoContent, resp.StatusCode)

				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/devices/verify", userID,
					map[string]any{"hardware_info": laptop})
				require.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Equal(t, string(keyDomain.ReasonDeviceDisabled), decode(t, body)["reason"])

				resp, _ = ctx.makeRequest(t, http.MethodGet, "/v1/devices", userID, nil)
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				resp, _ = ctx.makeRequest(t, http.MethodDelete, "/v1/devices/"+fingerprint, "resident-4004", nil)
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			})

			t.Run("05_ReRegisterReactivates", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/devices", userID,
					map[string]any{"hardware_info": laptop})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
				assert.InDelta(t, 0.90, decode(t, body)["trust_score"], 0.001)

				resp, _ = ctx.makeRequest(t, http.MethodPost, "/v1/devices/verify", userID,
					map[string]any{"hardware_info": laptop})
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			})
		})
	}
}
