package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	switch {
	case errors.Is(err, errInvalidCredentials), errors.Is(err, errInactiveAccount):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	case err != nil:
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.Me(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// respond writes v with status, or the mapped error.
func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func (a *API) respondDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"users": users}, err)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, user, err)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	a.respond(w, r, http.StatusCreated, user, err)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	user, err := a.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, user, err)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteUser(r.Context(), chi.URLParam(r, "id")))
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"categories": categories}, err)
}

func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.GetCategory(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, category, err)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	a.respond(w, r, http.StatusCreated, category, err)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, category, err)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")))
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"suppliers": suppliers}, err)
}

func (a *API) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := a.service.GetSupplier(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, supplier, err)
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	a.respond(w, r, http.StatusCreated, supplier, err)
}

func (a *API) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	supplier, err := a.service.UpdateSupplier(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, supplier, err)
}

func (a *API) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteSupplier(r.Context(), chi.URLParam(r, "id")))
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"customers": customers}, err)
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, customer, err)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	a.respond(w, r, http.StatusCreated, customer, err)
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	customer, err := a.service.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, customer, err)
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")))
}

// handleListDrugs searches name, generic name, brand and barcode when q is
// given.
func (a *API) handleListDrugs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	var (
		drugs []domain.Drug
		err   error
	)
	if q == "" && query.Get("limit") == "" {
		drugs, err = a.service.ListDrugs(r.Context())
	} else {
		drugs, err = a.service.SearchDrugs(r.Context(), q, parsePositiveLimit(query.Get("limit"), 50, 200))
	}
	a.respond(w, r, http.StatusOK, map[string]any{"drugs": drugs}, err)
}

func (a *API) handleGetDrug(w http.ResponseWriter, r *http.Request) {
	drug, err := a.service.GetDrug(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, drug, err)
}

func (a *API) handleCreateDrug(w http.ResponseWriter, r *http.Request) {
	var req domain.DrugCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	drug, err := a.service.CreateDrug(r.Context(), req)
	a.respond(w, r, http.StatusCreated, drug, err)
}

func (a *API) handleUpdateDrug(w http.ResponseWriter, r *http.Request) {
	var req domain.DrugUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	drug, err := a.service.UpdateDrug(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, drug, err)
}

func (a *API) handleDeleteDrug(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteDrug(r.Context(), chi.URLParam(r, "id")))
}

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := service.BatchFilter{DrugID: query.Get("drugId")}
	if raw := strings.TrimSpace(query.Get("lowStock")); raw != "" {
		lowStock, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "lowStock must be true or false")
			return
		}
		filter.LowStock = lowStock
	}
	if raw := strings.TrimSpace(query.Get("expiringWithin")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "expiringWithin must be a number of days")
			return
		}
		filter.ExpiringWithin = &days
	}

	batches, err := a.service.ListBatches(r.Context(), filter)
	a.respond(w, r, http.StatusOK, map[string]any{"batches": batches}, err)
}

func (a *API) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.GetBatch(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, batch, err)
}

func (a *API) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	batch, err := a.service.CreateBatch(r.Context(), req)
	a.respond(w, r, http.StatusCreated, batch, err)
}

func (a *API) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	batch, err := a.service.UpdateBatch(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, batch, err)
}

func (a *API) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteBatch(r.Context(), chi.URLParam(r, "id")))
}

// handleCommitSale answers 201 for a new sale and 200 when the idempotency
// key replays an earlier one. The Idempotency-Key header fills in a missing
// body key.
func (a *API) handleCommitSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	receipt, err := a.service.CommitSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	a.respond(w, r, http.StatusOK, map[string]any{"sales": sales}, err)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, sale, err)
}

func (a *API) handleListSaleItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListSaleItems(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, map[string]any{"items": items}, err)
}

func (a *API) handleSaleLookup(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.LookupSaleByIdempotencyKey(r.Context(), chi.URLParam(r, "key"))
	a.respond(w, r, http.StatusOK, sale, err)
}

func (a *API) handleRefundSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleStatusRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	sale, err := a.service.RefundSale(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, sale, err)
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleStatusRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	sale, err := a.service.CancelSale(r.Context(), chi.URLParam(r, "id"), req)
	a.respond(w, r, http.StatusOK, sale, err)
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := a.service.ListPurchases(r.Context(), r.URL.Query().Get("status"))
	a.respond(w, r, http.StatusOK, map[string]any{"purchases": purchases}, err)
}

func (a *API) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := a.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, purchase, err)
}

func (a *API) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	purchase, err := a.service.CreatePurchase(r.Context(), req)
	a.respond(w, r, http.StatusCreated, purchase, err)
}

func (a *API) handleReceivePurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := a.service.ReceivePurchase(r.Context(), chi.URLParam(r, "id"))
	a.respond(w, r, http.StatusOK, purchase, err)
}

func (a *API) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeletePurchase(r.Context(), chi.URLParam(r, "id")))
}

func (a *API) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.ListSettings(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"settings": settings}, err)
}

func (a *API) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := a.service.GetSetting(r.Context(), chi.URLParam(r, "key"))
	a.respond(w, r, http.StatusOK, setting, err)
}

func (a *API) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	setting, err := a.service.PutSetting(r.Context(), chi.URLParam(r, "key"), req)
	a.respond(w, r, http.StatusOK, setting, err)
}

func (a *API) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	a.respondDeleted(w, r, a.service.DeleteSetting(r.Context(), chi.URLParam(r, "key")))
}
