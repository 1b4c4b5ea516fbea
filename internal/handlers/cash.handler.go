package handlers

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/nimasrn/cash-ledger/internal/model"
	"github.com/nimasrn/cash-ledger/internal/services"
	xhttp "github.com/nimasrn/cash-ledger/pkg/http"
)

type PeriodService interface {
	List(ctx context.Context, active *bool) ([]*model.Period, error)
	Get(ctx context.Context, id int64) (*model.Period, error)
	Create(ctx context.Context, req model.PeriodCreateRequest) (*model.Period, error)
	Update(ctx context.Context, id int64, patch model.PeriodPatch) (*model.Period, error)
	Delete(ctx context.Context, id int64) error
}

type LedgerService interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.Transaction, error)
	ListMine(ctx context.Context, memberID int64, f model.TransactionFilter) (*model.TransactionPage, error)
	ListAll(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error)
}

type VerificationService interface {
	Verify(ctx context.Context, transactionID int64, decision model.TransactionStatus, verifierID int64) (*model.Transaction, error)
}

type StatisticsService interface {
	Get(ctx context.Context, periodID int64) (*model.PeriodStatistics, error)
}

type ProofService interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Discard(ctx context.Context, path string)
}

type CashHandler struct {
	periods      PeriodService
	ledger       LedgerService
	verification VerificationService
	statistics   StatisticsService
	proofs       ProofService
}

func NewCashHandler(periods PeriodService, ledger LedgerService, verification VerificationService, statistics StatisticsService, proofs ProofService) *CashHandler {
	return &CashHandler{
		periods:      periods,
		ledger:       ledger,
		verification: verification,
		statistics:   statistics,
		proofs:       proofs,
	}
}

func RegisterCashRoutes(e *router.Group, h *CashHandler, auth *Auth) {
	manage := func(next xhttp.RequestHandler) xhttp.RequestHandler {
		return auth.RequirePermission(model.PermissionCashManage, next)
	}

	e.GET("/cash/periods", auth.Authenticated(h.ListPeriods))
	e.GET("/cash/periods/{id}", auth.Authenticated(h.GetPeriod))
	e.GET("/cash/my-transactions", auth.Authenticated(h.ListMyTransactions))
	e.POST("/cash/transactions", auth.Authenticated(h.SubmitTransaction))

	e.POST("/cash/admin/periods", manage(h.CreatePeriod))
	e.PUT("/cash/admin/periods/{id}", manage(h.UpdatePeriod))
	e.DELETE("/cash/admin/periods/{id}", manage(h.DeletePeriod))
	e.GET("/cash/admin/transactions", manage(h.ListAllTransactions))
	e.PUT("/cash/admin/transactions/{id}/verify", manage(h.VerifyTransaction))
	e.GET("/cash/admin/statistics", manage(h.GetStatistics))
}

type periodRequest struct {
	Name          *string `json:"name"`
	Amount        *int64  `json:"amount"`
	LateFeePerDay *int64  `json:"late_fee_per_day"`
	DueDate       *string `json:"due_date"`
	IsActive      *bool   `json:"is_active"`
}

type submitRequest struct {
	PeriodID      int64  `json:"period_id"`
	PaymentMethod string `json:"payment_method"`
	PaymentDate   string `json:"payment_date"`
}

type verifyRequest struct {
	Status string `json:"status"`
}

/* --------------------------------- Periods ---------------------------------- */

func (h *CashHandler) ListPeriods(ctx *xhttp.RequestCtx) {
	var active *bool
	if v := query(ctx, "is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "is_active must be true or false")
			return
		}
		active = &b
	}

	periods, err := h.periods.List(ctx, active)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Cash periods retrieved successfully", periods)
}

func (h *CashHandler) GetPeriod(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid period id")
		return
	}

	period, err := h.periods.Get(ctx, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Cash period retrieved successfully", period)
}

func (h *CashHandler) CreatePeriod(ctx *xhttp.RequestCtx) {
	var req periodRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	create := model.PeriodCreateRequest{
		Amount:        req.Amount,
		LateFeePerDay: req.LateFeePerDay,
	}
	if req.Name != nil {
		create.Name = *req.Name
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseTime(*req.DueDate)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "due_date must be YYYY-MM-DD or RFC3339")
			return
		}
		create.DueDate = &due
	}

	period, err := h.periods.Create(ctx, create)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusCreated, "Cash period created successfully", period)
}

func (h *CashHandler) UpdatePeriod(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid period id")
		return
	}

	var req periodRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	patch := model.PeriodPatch{
		Name:          req.Name,
		Amount:        req.Amount,
		LateFeePerDay: req.LateFeePerDay,
		IsActive:      req.IsActive,
	}
	if req.DueDate != nil {
		due, err := parseTime(*req.DueDate)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "due_date must be YYYY-MM-DD or RFC3339")
			return
		}
		patch.DueDate = &due
	}

	period, err := h.periods.Update(ctx, id, patch)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Cash period updated successfully", period)
}

func (h *CashHandler) DeletePeriod(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid period id")
		return
	}

	if err := h.periods.Delete(ctx, id); err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Cash period deleted successfully", nil)
}

/* ------------------------------- Transactions ------------------------------- */

func (h *CashHandler) ListMyTransactions(ctx *xhttp.RequestCtx) {
	f, ok := transactionFilter(ctx, false)
	if !ok {
		return
	}

	page, err := h.ledger.ListMine(ctx, identityFrom(ctx).UserID, f)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writePage(ctx, page)
}

func (h *CashHandler) ListAllTransactions(ctx *xhttp.RequestCtx) {
	f, ok := transactionFilter(ctx, true)
	if !ok {
		return
	}

	page, err := h.ledger.ListAll(ctx, f)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writePage(ctx, page)
}

// SubmitTransaction accepts either a JSON body or a multipart form whose
// "proof" part carries the transfer receipt.
func (h *CashHandler) SubmitTransaction(ctx *xhttp.RequestCtx) {
	var (
		req       submitRequest
		proofPath string
	)

	if isMultipart(ctx) {
		form, err := ctx.MultipartForm()
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		req.PaymentMethod = formValue(form.Value, "payment_method")
		req.PaymentDate = formValue(form.Value, "payment_date")
		if v := formValue(form.Value, "period_id"); v != "" {
			req.PeriodID, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(ctx, xhttp.StatusBadRequest, "period_id must be a number")
				return
			}
		}

		if files := form.File["proof"]; len(files) > 0 {
			fh := files[0]
			if fh.Size > services.MaxProofSize {
				respondError(ctx, services.ErrProofTooLarge)
				return
			}
			f, err := fh.Open()
			if err != nil {
				writeError(ctx, xhttp.StatusBadRequest, "unreadable proof file")
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, services.MaxProofSize+1))
			f.Close()
			if err != nil {
				writeError(ctx, xhttp.StatusBadRequest, "unreadable proof file")
				return
			}

			proofPath, err = h.proofs.Save(ctx, fh.Filename, data)
			if err != nil {
				respondError(ctx, err)
				return
			}
		}
	} else if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	submit := model.SubmitRequest{
		MemberID:      identityFrom(ctx).UserID,
		PeriodID:      req.PeriodID,
		PaymentMethod: model.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod))),
		ProofPath:     proofPath,
	}
	if req.PaymentDate != "" {
		paid, err := parseTime(req.PaymentDate)
		if err != nil {
			h.discardProof(ctx, proofPath)
			writeError(ctx, xhttp.StatusBadRequest, "payment_date must be YYYY-MM-DD or RFC3339")
			return
		}
		submit.PaymentDate = &paid
	}

	txn, err := h.ledger.Submit(ctx, submit)
	if err != nil {
		h.discardProof(ctx, proofPath)
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusCreated, "Payment submitted successfully", txn)
}

// discardProof drops a proof accepted for a submission that did not go through.
func (h *CashHandler) discardProof(ctx *xhttp.RequestCtx, path string) {
	if path == "" {
		return
	}
	h.proofs.Discard(ctx, path)
}

func (h *CashHandler) VerifyTransaction(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid transaction id")
		return
	}

	var req verifyRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	decision := model.TransactionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	txn, err := h.verification.Verify(ctx, id, decision, identityFrom(ctx).UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Transaction "+strings.ToLower(string(decision))+" successfully", txn)
}

func (h *CashHandler) GetStatistics(ctx *xhttp.RequestCtx) {
	var periodID int64
	if v := query(ctx, "period_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "period_id must be a number")
			return
		}
		periodID = id
	}

	stats, err := h.statistics.Get(ctx, periodID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	writeSuccess(ctx, xhttp.StatusOK, "Statistics retrieved successfully", stats)
}

type intParam struct {
	key string
	set func(n int64)
}

func transactionFilter(ctx *xhttp.RequestCtx, withUser bool) (model.TransactionFilter, bool) {
	var f model.TransactionFilter

	if v := query(ctx, "status"); v != "" {
		s := model.TransactionStatus(strings.ToUpper(v))
		f.Status = &s
	}

	ints := []intParam{
		{"period_id", func(n int64) { f.PeriodID = &n }},
		{"page", func(n int64) { f.Page = int(n) }},
		{"limit", func(n int64) { f.Limit = int(n) }},
	}
	if withUser {
		ints = append(ints, intParam{"user_id", func(n int64) { f.UserID = &n }})
	}

	for _, p := range ints {
		v := query(ctx, p.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, p.key+" must be a number")
			return f, false
		}
		p.set(n)
	}
	return f, true
}

func writePage(ctx *xhttp.RequestCtx, page *model.TransactionPage) {
	items := page.Items
	if items == nil {
		items = []*model.Transaction{}
	}
	writeJSON(ctx, xhttp.StatusOK, envelope{
		Success:    true,
		Message:    "Transactions retrieved successfully",
		Data:       items,
		Pagination: newPagination(page.Page, page.Limit, page.Total),
	})
}

func isMultipart(ctx *xhttp.RequestCtx) bool {
	return bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("multipart/form-data"))
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
