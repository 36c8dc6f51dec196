package handlers

import (
	"net/http"

	"github.com/upb/academy-hub/preferences"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// CurrencyResponse is the body of the currency preference endpoints
type CurrencyResponse struct {
	Currency   preferences.Currency   `json:"currency"`
	Symbol     string                 `json:"symbol"`
	Currencies []preferences.Currency `json:"currencies"`
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

// PreferencesHandler serves the currency preference, persisted in a cookie.
// Browsers without a cookie get the currency from defaults.
type PreferencesHandler struct {
	secure   bool
	defaults preferences.Store
	logger   *zap.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler. defaults may be nil.
func NewPreferencesHandler(secure bool, defaults preferences.Store, logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{secure: secure, defaults: defaults, logger: logger}
}

// HandleGetCurrency handles GET /api/preferences/currency
func (h *PreferencesHandler) HandleGetCurrency(w http.ResponseWriter, r *http.Request) {
	if c, ok := preferences.NewCookieStore(w, r, h.secure).Lookup(); ok {
		_ = utils.WriteOK(w, currencyResponse(c))
		return
	}
	_ = utils.WriteOK(w, currencyResponse(h.defaultCurrency()))
}

func (h *PreferencesHandler) defaultCurrency() preferences.Currency {
	if h.defaults == nil {
		return preferences.DefaultCurrency
	}
	c, err := h.defaults.Currency()
	if err != nil {
		h.logger.Warn("failed to read default currency", zap.Error(err))
	}
	return c
}

// HandlePutCurrency handles PUT /api/preferences/currency
func (h *PreferencesHandler) HandlePutCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	c, err := preferences.ParseCurrency(req.Currency)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), map[string]interface{}{
			"currencies": preferences.Currencies(),
		})
		return
	}

	if err := preferences.NewCookieStore(w, r, h.secure).SetCurrency(c); err != nil {
		h.logger.Error("failed to store currency", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	_ = utils.WriteOK(w, currencyResponse(c))
}

func currencyResponse(c preferences.Currency) CurrencyResponse {
	return CurrencyResponse{
		Currency:   c,
		Symbol:     c.Symbol(),
		Currencies: preferences.Currencies(),
	}
}
