package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors; it satisfies error
// and is the concrete type returned for a ConfigInvalid condition.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration invalid: %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs the ConfigInvalid startup checks: missing credentials and
// contradictory limits are both fatal, per the error taxonomy.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateVenues()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateRisk()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{Field: "app.log_level", Message: "log level is required"})
	}

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if c.App.Environment != "" && !validEnvs[c.App.Environment] {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("invalid environment %q, must be development|staging|production", c.App.Environment),
		})
	}

	return errors
}

func (c *Config) validateVenues() ValidationErrors {
	var errors ValidationErrors

	for _, name := range []string{"exk", "exu"} {
		v, ok := c.Venues[name]
		if !ok {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("venues.%s", name),
				Message: "venue is not configured",
			})
			continue
		}

		// Credentials are only strictly required when not running dry-run.
		if !c.App.DryRun {
			if v.APIKey == "" {
				errors = append(errors, ValidationError{
					Field: fmt.Sprintf("venues.%s.api_key", name), Message: "access key is required for live trading",
				})
			}
			if v.SecretKey == "" {
				errors = append(errors, ValidationError{
					Field: fmt.Sprintf("venues.%s.secret_key", name), Message: "secret key is required for live trading",
				})
			}
		}
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.MinTradeAmountKrw <= 0 {
		errors = append(errors, ValidationError{Field: "trading.min_trade_amount_krw", Message: "must be positive"})
	}
	if c.Trading.MaxTradeAmountKrw <= 0 {
		errors = append(errors, ValidationError{Field: "trading.max_trade_amount_krw", Message: "must be positive"})
	}
	if c.Trading.MinTradeAmountKrw > 0 && c.Trading.MaxTradeAmountKrw > 0 &&
		c.Trading.MinTradeAmountKrw > c.Trading.MaxTradeAmountKrw {
		errors = append(errors, ValidationError{
			Field:   "trading.min_trade_amount_krw",
			Message: "min trade amount must not exceed max trade amount (contradictory limits)",
		})
	}
	if c.Trading.SafetyMarginPct < 0 {
		errors = append(errors, ValidationError{Field: "trading.safety_margin_pct", Message: "must be non-negative"})
	}
	if c.Trading.PriceUpdateIntervalSec <= 0 {
		errors = append(errors, ValidationError{Field: "trading.price_update_interval_sec", Message: "must be positive"})
	}
	if c.Trading.TransferTimeoutMinutes <= 0 {
		errors = append(errors, ValidationError{Field: "trading.transfer_timeout_minutes", Message: "must be positive"})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.MaxSingleTradeKrw <= 0 {
		errors = append(errors, ValidationError{Field: "risk.max_single_trade_krw", Message: "must be positive"})
	}
	if c.Risk.MaxDailyVolumeKrw <= 0 {
		errors = append(errors, ValidationError{Field: "risk.max_daily_volume_krw", Message: "must be positive"})
	}
	if c.Risk.MaxSingleTradeKrw > 0 && c.Risk.MaxDailyVolumeKrw > 0 &&
		c.Risk.MaxSingleTradeKrw > c.Risk.MaxDailyVolumeKrw {
		errors = append(errors, ValidationError{
			Field:   "risk.max_single_trade_krw",
			Message: "single-trade limit must not exceed daily volume limit (contradictory limits)",
		})
	}
	if c.Risk.MaxConcurrent <= 0 {
		errors = append(errors, ValidationError{Field: "risk.max_concurrent", Message: "must be at least 1"})
	}
	if c.Risk.MaxSlippagePct <= 0 {
		errors = append(errors, ValidationError{Field: "risk.max_slippage_pct", Message: "must be positive"})
	}
	if c.Risk.EmergencyLossPct <= 0 {
		errors = append(errors, ValidationError{Field: "risk.emergency_loss_pct", Message: "must be positive"})
	}
	if c.Risk.MaxExposurePct <= 0 || c.Risk.MaxExposurePct > 100 {
		errors = append(errors, ValidationError{Field: "risk.max_exposure_pct", Message: "must be in (0, 100]"})
	}

	return errors
}
