package main

import (
	"net/http"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/config"
	"backoffice/httpx"
	"backoffice/logging"
	"backoffice/money"
)

// settings is the part of the configuration editable from the app.
type settings struct {
	Company config.Company `json:"company"`
	Invoice config.Invoice `json:"invoice"`
}

// GetConfigHandler returns the current company and invoice settings.
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := config.Get()
		httpx.WriteJSON(w, http.StatusOK, settings{Company: cfg.Company, Invoice: cfg.Invoice})
	}
}

// SaveConfigHandler validates and saves the settings. A new overdue schedule
// takes effect on the next start.
func SaveConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in settings
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := validateSettings(&in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		cfg, err := config.SaveSettings(in.Company, in.Invoice)
		if err != nil {
			logging.FromContext(r.Context()).Error("failed to save config", zap.Error(err))
			httpx.WriteError(w, r, apperr.Internal("failed to save settings", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, settings{Company: cfg.Company, Invoice: cfg.Invoice})
	}
}

func validateSettings(in *settings) error {
	in.Company.Name = strings.TrimSpace(in.Company.Name)
	if in.Company.Name == "" {
		return apperr.Invalid("company name is required")
	}
	code, ok := money.NormalizeCurrency(in.Company.Currency)
	if !ok {
		return apperr.Invalid("unknown currency code: " + in.Company.Currency)
	}
	in.Company.Currency = code
	if d := in.Invoice.DefaultDueDays; d < 1 || d > 365 {
		return apperr.Invalid("invoice default due days must be between 1 and 365")
	}
	in.Invoice.OverdueSchedule = strings.TrimSpace(in.Invoice.OverdueSchedule)
	if in.Invoice.OverdueSchedule == "" {
		in.Invoice.OverdueSchedule = config.Defaults().Invoice.OverdueSchedule
	}
	if _, err := cron.ParseStandard(in.Invoice.OverdueSchedule); err != nil {
		return apperr.Invalid("invalid overdue schedule: " + in.Invoice.OverdueSchedule)
	}
	return nil
}
