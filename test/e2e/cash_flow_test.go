package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/cash-ledger/internal/handlers"
	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/queue"
	"github.com/nimasrn/cash-ledger/internal/repository"
	"github.com/nimasrn/cash-ledger/internal/services"
	"github.com/nimasrn/cash-ledger/pkg/pg"
	"github.com/nimasrn/cash-ledger/test/fixtures"
	"github.com/nimasrn/cash-ledger/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type memoryProofStore struct {
	mu        sync.Mutex
	files     map[string][]byte
	deleteErr error
}

func newMemoryProofStore() *memoryProofStore {
	return &memoryProofStore{files: make(map[string][]byte)}
}

func (s *memoryProofStore) Upload(ctx context.Context, filename, contentType string, data []byte) (*model.StoredProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := fmt.Sprintf("/uploads/proofs/%d-%s", len(s.files)+1, filename)
	s.files[path] = data
	return &model.StoredProof{Path: path}, nil
}

func (s *memoryProofStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.files, path)
	return nil
}

func (s *memoryProofStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

type TestEnvironment struct {
	DB      *pg.DB
	Router  *router.Router
	Proofs  *memoryProofStore
	Cleanup *queue.Queue

	Admin   *repository.MemberEntity
	Alice   *repository.MemberEntity
	Bob     *repository.MemberEntity
	Charlie *repository.MemberEntity

	AdminToken string
	AliceToken string
	BobToken   string
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	_, adapter := helpers.SetupTestRedis(t)

	cleanup, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:          "test:proof-cleanup",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		EnableDLQ:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup.Stop(time.Second) })

	periodRepo := repository.NewPeriodRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	memberRepo := repository.NewMemberRepository(db)

	store := newMemoryProofStore()
	guard := services.NewSubmissionGuard(adapter, 5*time.Second)

	h := handlers.NewCashHandler(
		services.NewPeriodService(periodRepo),
		services.NewTransactionService(periodRepo, transactionRepo, guard),
		services.NewVerificationService(transactionRepo),
		services.NewStatisticsService(periodRepo, transactionRepo, memberRepo),
		services.NewProofService(store, cleanup),
	)
	auth := handlers.NewAuth(services.NewIdentityService(fixtures.TestTokenSecret, ""))

	r := router.New()
	handlers.RegisterCashRoutes(r.Group("/api/v1"), h, auth)

	env := &TestEnvironment{
		DB:      db,
		Router:  r,
		Proofs:  store,
		Cleanup: cleanup,
		Admin:   helpers.CreateTestMember(t, db, "admin"),
		Alice:   helpers.CreateTestMember(t, db, "alice"),
		Bob:     helpers.CreateTestMember(t, db, "bob"),
		Charlie: helpers.CreateTestMember(t, db, "charlie"),
	}
	env.AdminToken = helpers.SignToken(t, fixtures.TestTokenSecret, env.Admin.ID, []string{model.RoleAdmin}, nil)
	env.AliceToken = helpers.SignToken(t, fixtures.TestTokenSecret, env.Alice.ID, nil, nil)
	env.BobToken = helpers.SignToken(t, fixtures.TestTokenSecret, env.Bob.ID, nil, nil)
	return env
}

type response struct {
	Status int
	Body   map[string]any
}

func (r response) data() map[string]any {
	d, _ := r.Body["data"].(map[string]any)
	return d
}

func (env *TestEnvironment) do(t *testing.T, method, uri, token string, body []byte, contentType string) response {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		ctx.Request.SetBody(body)
	}
	if contentType != "" {
		ctx.Request.Header.SetContentType(contentType)
	}

	env.Router.Handler(ctx)

	resp := response{Status: ctx.Response.StatusCode()}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp.Body), string(ctx.Response.Body()))
	return resp
}

func (env *TestEnvironment) doJSON(t *testing.T, method, uri, token string, payload any) response {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return env.do(t, method, uri, token, body, "application/json")
}

func (env *TestEnvironment) submitTransfer(t *testing.T, token string, periodID int64, paid string) response {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("period_id", fmt.Sprint(periodID)))
	require.NoError(t, w.WriteField("payment_method", "TRANSFER"))
	require.NoError(t, w.WriteField("payment_date", paid))
	part, err := w.CreateFormFile("proof", "receipt.png")
	require.NoError(t, err)
	_, err = part.Write(fixtures.PNGHeader)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return env.do(t, "POST", "/api/v1/cash/transactions", token, buf.Bytes(), w.FormDataContentType())
}

func idOf(t *testing.T, r response) int64 {
	id, ok := r.data()["id"].(float64)
	require.True(t, ok, "response has no id: %v", r.Body)
	return int64(id)
}

func TestE2E_CashCollectionFlow(t *testing.T) {
	env := setupE2EEnvironment(t)

	created := env.doJSON(t, "POST", "/api/v1/cash/admin/periods", env.AdminToken, map[string]any{
		"name":             "March 2024",
		"amount":           50000,
		"late_fee_per_day": 2000,
		"due_date":         "2024-03-10",
	})
	require.Equal(t, 201, created.Status, created.Body)
	periodID := idOf(t, created)
	assert.Equal(t, true, created.data()["is_active"])

	// two days late
	cash := env.doJSON(t, "POST", "/api/v1/cash/transactions", env.AliceToken, map[string]any{
		"period_id":      periodID,
		"payment_method": "CASH",
		"payment_date":   "2024-03-12",
	})
	require.Equal(t, 201, cash.Status, cash.Body)
	assert.Equal(t, "COMPLETE", cash.data()["status"])
	assert.Equal(t, float64(4000), cash.data()["fine_amount"])
	assert.Equal(t, float64(50000), cash.data()["amount_paid"])

	again := env.doJSON(t, "POST", "/api/v1/cash/transactions", env.AliceToken, map[string]any{
		"period_id":      periodID,
		"payment_method": "CASH",
		"payment_date":   "2024-03-12",
	})
	assert.Equal(t, 409, again.Status)
	assert.Equal(t, services.ErrAlreadySubmitted.Msg, again.Body["message"])

	transfer := env.submitTransfer(t, env.BobToken, periodID, "2024-03-09")
	require.Equal(t, 201, transfer.Status, transfer.Body)
	assert.Equal(t, "PENDING", transfer.data()["status"])
	assert.Equal(t, float64(0), transfer.data()["fine_amount"])
	assert.Contains(t, transfer.data()["proof_image_url"], "receipt.png")
	firstTransfer := idOf(t, transfer)

	forbidden := env.doJSON(t, "PUT", fmt.Sprintf("/api/v1/cash/admin/transactions/%d/verify", firstTransfer), env.BobToken,
		map[string]any{"status": "COMPLETE"})
	assert.Equal(t, 403, forbidden.Status)

	rejected := env.doJSON(t, "PUT", fmt.Sprintf("/api/v1/cash/admin/transactions/%d/verify", firstTransfer), env.AdminToken,
		map[string]any{"status": "REJECTED"})
	require.Equal(t, 200, rejected.Status, rejected.Body)
	assert.Equal(t, "REJECTED", rejected.data()["status"])
	assert.Equal(t, float64(env.Admin.ID), rejected.data()["verifier_id"])

	// a rejected payment frees the period for a new submission
	retry := env.submitTransfer(t, env.BobToken, periodID, "2024-03-10")
	require.Equal(t, 201, retry.Status, retry.Body)
	secondTransfer := idOf(t, retry)
	assert.NotEqual(t, firstTransfer, secondTransfer)

	approved := env.doJSON(t, "PUT", fmt.Sprintf("/api/v1/cash/admin/transactions/%d/verify", secondTransfer), env.AdminToken,
		map[string]any{"status": "complete"})
	require.Equal(t, 200, approved.Status, approved.Body)
	assert.Equal(t, "COMPLETE", approved.data()["status"])

	twice := env.doJSON(t, "PUT", fmt.Sprintf("/api/v1/cash/admin/transactions/%d/verify", secondTransfer), env.AdminToken,
		map[string]any{"status": "REJECTED"})
	assert.Equal(t, 409, twice.Status)

	mine := env.doJSON(t, "GET", "/api/v1/cash/my-transactions", env.BobToken, nil)
	require.Equal(t, 200, mine.Status)
	items, ok := mine.Body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)

	stats := env.doJSON(t, "GET", fmt.Sprintf("/api/v1/cash/admin/statistics?period_id=%d", periodID), env.AdminToken, nil)
	require.Equal(t, 200, stats.Status, stats.Body)
	s := stats.data()["statistics"].(map[string]any)
	assert.Equal(t, float64(4), s["total_members"])
	assert.Equal(t, float64(2), s["paid_count"])
	assert.Equal(t, float64(0), s["pending_count"])
	assert.Equal(t, float64(2), s["unpaid_count"])
	assert.Equal(t, float64(100000), s["total_collected"])
	assert.Equal(t, float64(4000), s["total_fines"])
	assert.Equal(t, "50.00%", s["payment_rate"])

	inUse := env.doJSON(t, "DELETE", fmt.Sprintf("/api/v1/cash/admin/periods/%d", periodID), env.AdminToken, nil)
	assert.Equal(t, 409, inUse.Status)
}

func TestE2E_ClosedPeriodRejectsSubmission(t *testing.T) {
	env := setupE2EEnvironment(t)
	period := helpers.CreateTestPeriod(t, env.DB, "Closed", 50000, 0, fixtures.DueMarch)

	closed := env.doJSON(t, "PUT", fmt.Sprintf("/api/v1/cash/admin/periods/%d", period.ID), env.AdminToken,
		map[string]any{"is_active": false})
	require.Equal(t, 200, closed.Status, closed.Body)

	resp := env.submitTransfer(t, env.AliceToken, period.ID, "2024-03-01")
	assert.Equal(t, 409, resp.Status)
	assert.Equal(t, services.ErrPeriodInactive.Msg, resp.Body["message"])

	// the accepted proof was removed again
	assert.Equal(t, 0, env.Proofs.Count())
}

func TestE2E_OrphanedProofIsQueuedForCleanup(t *testing.T) {
	env := setupE2EEnvironment(t)
	env.Proofs.deleteErr = errors.New("store unavailable")

	resp := env.submitTransfer(t, env.AliceToken, 999, "2024-03-01")
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, 1, env.Proofs.Count())

	stats, err := env.Cleanup.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)
}

func TestE2E_TransferWithoutProof(t *testing.T) {
	env := setupE2EEnvironment(t)
	period := helpers.CreateTestPeriod(t, env.DB, "March", 50000, 2000, fixtures.DueMarch)

	resp := env.doJSON(t, "POST", "/api/v1/cash/transactions", env.AliceToken, map[string]any{
		"period_id":      period.ID,
		"payment_method": "TRANSFER",
		"payment_date":   "2024-03-01",
	})
	assert.Equal(t, 400, resp.Status)
	assert.Equal(t, services.ErrProofRequired.Msg, resp.Body["message"])

	var count int64
	require.NoError(t, env.DB.Read(context.Background()).Model(&repository.TransactionEntity{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestE2E_Unauthenticated(t *testing.T) {
	env := setupE2EEnvironment(t)

	resp := env.doJSON(t, "GET", "/api/v1/cash/periods", "", nil)
	assert.Equal(t, 401, resp.Status)

	forged := helpers.SignToken(t, "another-secret", env.Alice.ID, nil, nil)
	resp = env.doJSON(t, "GET", "/api/v1/cash/periods", forged, nil)
	assert.Equal(t, 401, resp.Status)
}

func TestE2E_TreasurerManagesPeriods(t *testing.T) {
	env := setupE2EEnvironment(t)
	treasurer := helpers.CreateTestMember(t, env.DB, fixtures.TreasurerIdentity.Name)
	token := helpers.SignToken(t, fixtures.TestTokenSecret, treasurer.ID, nil, fixtures.TreasurerIdentity.Permissions)

	p := fixtures.TestPeriodMarch
	created := env.doJSON(t, "POST", "/api/v1/cash/admin/periods", token, map[string]any{
		"name":             p.Name,
		"amount":           p.Amount,
		"late_fee_per_day": p.LateFeePerDay,
		"due_date":         p.DueDate.Format(time.RFC3339),
	})
	require.Equal(t, 201, created.Status, created.Body)
	periodID := idOf(t, created)

	listed := env.doJSON(t, "GET", "/api/v1/cash/admin/transactions", token, nil)
	assert.Equal(t, 200, listed.Status)

	denied := env.doJSON(t, "POST", "/api/v1/cash/admin/periods", env.AliceToken, map[string]any{
		"name": "nope", "amount": 1, "due_date": "2024-04-01",
	})
	assert.Equal(t, 403, denied.Status)

	deleted := env.doJSON(t, "DELETE", fmt.Sprintf("/api/v1/cash/admin/periods/%d", periodID), token, nil)
	assert.Equal(t, 200, deleted.Status)

	missing := env.doJSON(t, "GET", fmt.Sprintf("/api/v1/cash/periods/%d", periodID), env.AliceToken, nil)
	assert.Equal(t, 404, missing.Status)
}

func TestE2E_InvalidPaymentMethod(t *testing.T) {
	env := setupE2EEnvironment(t)
	period := helpers.CreateTestPeriod(t, env.DB, "March", 50000, 0, fixtures.DueMarch)

	for _, method := range fixtures.InvalidPaymentMethods {
		t.Run("method "+method, func(t *testing.T) {
			resp := env.doJSON(t, "POST", "/api/v1/cash/transactions", env.AliceToken, map[string]any{
				"period_id":      period.ID,
				"payment_method": method,
				"payment_date":   "2024-03-01",
			})
			assert.Equal(t, 400, resp.Status, resp.Body)
		})
	}
}
