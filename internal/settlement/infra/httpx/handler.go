package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/marketplace-settlement/internal/checkout"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/app"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/ports"
)

// Caller identity headers, injected by the upstream auth gateway.
// Authentication itself is out of scope for this service.
const (
	headerCallerEmail = "X-Caller-Email"
	headerCallerRole  = "X-Caller-Role"
)

// Handler exposes the settlement core over HTTP.
type Handler struct {
	settlements  *app.SettlementService
	installments *app.InstallmentService
	quotes       *checkout.Builder
	store        ports.Store
}

func NewHandler(
	settlements *app.SettlementService,
	installments *app.InstallmentService,
	quotes *checkout.Builder,
	store ports.Store,
) *Handler {
	return &Handler{
		settlements:  settlements,
		installments: installments,
		quotes:       quotes,
		store:        store,
	}
}

// Settle is the settlement entry point, called after a gateway reports a
// successful charge (client confirm or webhook).
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "reference_required", "payment reference is required")
		return
	}

	result, err := h.settlements.Settle(r.Context(), req.Reference)
	if err != nil {
		h.writeSettlementError(w, r, req.Reference, err)
		return
	}

	writeJSON(w, http.StatusOK, SettleResponse{
		OK:               true,
		OrderID:          result.OrderID,
		StorefrontSlug:   result.StorefrontSlug,
		EscrowStatus:     string(result.EscrowStatus),
		HoldUntil:        result.HoldUntil.UTC().Format(time.RFC3339),
		AlreadyProcessed: result.AlreadyProcessed,
	})
}

// VerifyInstallment verifies a single installment of an order's payment
// plan against the active gateway.
func (h *Handler) VerifyInstallment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid_index", "installment index must be a non-negative integer")
		return
	}

	var req VerifyInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	result, err := h.installments.Verify(r.Context(), app.VerifyInstallmentInput{
		OrderID:       orderID,
		Index:         index,
		Reference:     req.Reference,
		TransactionID: req.TransactionID,
		CallerEmail:   r.Header.Get(headerCallerEmail),
		CallerRole:    r.Header.Get(headerCallerRole),
	})
	if err != nil {
		status, code := mapInstallmentError(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "installment verification failed", "order_id", orderID, "index", index, "error", err)
		}
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, VerifyInstallmentResponse{
		OK:          true,
		AlreadyPaid: result.AlreadyPaid,
		Completed:   result.Completed,
		PaidKobo:    result.PaidKobo,
		TotalKobo:   result.TotalKobo,
	})
}

// Quote exposes the quote builder read-only so a checkout UI can show
// the authoritative total before charging. Building a quote has no side
// effects.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]checkout.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, checkout.CartItem{
			ProductID:       it.ProductID,
			Qty:             it.Qty,
			SelectedOptions: it.SelectedOptions,
		})
	}

	quote, err := h.quotes.BuildQuote(r.Context(), checkout.QuoteInput{
		StorefrontSlug:  req.StorefrontSlug,
		Items:           items,
		CouponCode:      req.CouponCode,
		ShippingFeeKobo: req.ShippingFeeKobo,
	})
	if err != nil {
		status, code := mapQuoteError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "quote build failed", "storefront", req.StorefrontSlug, "error", err)
			msg = "failed to build quote"
		}
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// GetOrderByID returns a settled order.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	order, err := h.store.OrderByID(r.Context(), orderID)
	if err != nil {
		slog.ErrorContext(r.Context(), "order lookup failed", "order_id", orderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order_not_found", "")
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) writeSettlementError(w http.ResponseWriter, r *http.Request, reference string, err error) {
	var mismatch *app.AmountMismatchError
	if errors.As(err, &mismatch) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:        mismatch.Error(),
			Code:         "AMOUNT_MISMATCH",
			ExpectedKobo: mismatch.ExpectedKobo,
			PaidKobo:     mismatch.PaidKobo,
		})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrStorefrontNotFound):
		writeError(w, http.StatusNotFound, "storefront_not_found", err.Error())
	case app.IsRejection(err):
		writeError(w, http.StatusBadRequest, "settlement_rejected", err.Error())
	default:
		slog.ErrorContext(r.Context(), "settlement failed", "reference", reference, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "settlement failed")
	}
}

func mapInstallmentError(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrOrderNotFound),
		errors.Is(err, entity.ErrInstallmentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrNotOrderOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, entity.ErrNotEscrowOrder),
		errors.Is(err, entity.ErrNoPaymentPlan),
		errors.Is(err, entity.ErrPaymentNotSuccessful),
		errors.Is(err, entity.ErrWrongCurrency),
		errors.Is(err, entity.ErrInstallmentAmount),
		errors.Is(err, entity.ErrVerificationMismatch),
		errors.Is(err, entity.ErrReferenceRequired),
		errors.Is(err, entity.ErrTransactionIDRequired):
		return http.StatusBadRequest, "verification_rejected"
	}
	return http.StatusInternalServerError, "internal_error"
}

func mapQuoteError(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrStorefrontNotFound):
		return http.StatusNotFound, "storefront_not_found"
	case errors.Is(err, checkout.ErrInvalidCart),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, checkout.ErrCouponInvalid):
		return http.StatusBadRequest, "invalid_quote"
	}
	return http.StatusInternalServerError, "internal_error"
}

func mapOrderToResponse(order *entity.Order) OrderResponse {
	items := make([]OrderItemDTO, len(order.Items))
	for i, it := range order.Items {
		items[i] = OrderItemDTO{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Qty:           it.Qty,
			BaseUnitKobo:  it.BaseUnitKobo,
			FinalUnitKobo: it.FinalUnitKobo,
			LineTotalKobo: it.LineTotalKobo,
			SaleApplied:   it.SaleApplied,
		}
	}

	res := OrderResponse{
		ID:             order.ID,
		StorefrontSlug: order.StorefrontSlug,
		PaymentType:    string(order.PaymentType),
		PaymentStatus:  string(order.PaymentStatus),
		EscrowStatus:   string(order.EscrowStatus),
		Status:         string(order.Status),
		TotalKobo:      order.TotalKobo,
		TotalMajor:     order.TotalMajor,
		HoldUntil:      order.HoldUntil.UTC().Format(time.RFC3339),
		Items:          items,
		CreatedAt:      order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if order.Plan != nil {
		plan := &PaymentPlanDTO{
			TotalKobo: order.Plan.TotalKobo,
			PaidKobo:  order.Plan.PaidKobo,
			Completed: order.Plan.Completed,
		}
		for _, inst := range order.Plan.Installments {
			plan.Installments = append(plan.Installments, InstallmentDTO{
				Index:      inst.Index,
				AmountKobo: inst.AmountKobo,
				Status:     string(inst.Status),
			})
		}
		res.Plan = plan
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error: msg,
		Code:  code,
	})
}
