package types

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServiceConfig drives the entitlement service. It is read once from the
// environment at start-up (see ServiceConfigFromEnv).
// EntitlementTTL bounds how stale a cached snapshot may get between explicit invalidations.
// SweepInterval is how often expired cache entries are reclaimed.
// AdminKey guards the grant mutation endpoints, WebhookKey guards the checkout webhook.
// GrantEventsTopicArn, when set, receives a GrantEvent after every grant mutation.
type ServiceConfig struct {
	Port                int             `json:"port" yaml:"port"`
	EntitlementTTL      time.Duration   `json:"entitlement_ttl" yaml:"entitlement_ttl"`
	SweepInterval       time.Duration   `json:"sweep_interval" yaml:"sweep_interval"`
	AdminKey            string          `json:"-" yaml:"-"`
	WebhookKey          string          `json:"-" yaml:"-"`
	GrantEventsTopicArn string          `json:"grant_events_topic_arn" yaml:"grant_events_topic_arn"`
	TrialDuration       time.Duration   `json:"trial_duration" yaml:"trial_duration"`
	Checkout            CheckoutMapping `json:"checkout" yaml:"checkout"`
}

const (
	AdminKeyMinLength = 8

	UserIDHdrName     = "x-user-id"
	AdminKeyHdrName   = "x-admin-key"
	WebhookKeyHdrName = "x-webhook-key"

	DefaultPort           = 8080
	DefaultEntitlementTTL = 60 * time.Second
	DefaultSweepInterval  = 60 * time.Second
	DefaultTrialDays      = 7

	MaxEntitlementTTL = 15 * time.Minute
)

// CheckoutMapping holds JMESPath expressions locating the subscription fields
// inside a payment provider's checkout-completed payload.
type CheckoutMapping struct {
	UserIDExpr    string `json:"user_id" yaml:"user_id"`
	StatusExpr    string `json:"status" yaml:"status"`
	PlanExpr      string `json:"plan" yaml:"plan"`
	PeriodEndExpr string `json:"period_end" yaml:"period_end"`
}

func DefaultCheckoutMapping() CheckoutMapping {
	return CheckoutMapping{
		UserIDExpr:    "user_id",
		StatusExpr:    "status",
		PlanExpr:      "plan_type",
		PeriodEndExpr: "period_end",
	}
}

// ServiceConfigFromEnv builds the config from environment variables, applying defaults.
// Durations accept Go duration strings ("90s") or plain seconds ("90").
func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := ServiceConfig{
		AdminKey:            os.Getenv("ADMIN_KEY"),
		WebhookKey:          os.Getenv("WEBHOOK_KEY"),
		GrantEventsTopicArn: os.Getenv("GRANT_EVENTS_TOPIC_ARN"),
		Checkout:            DefaultCheckoutMapping(),
	}
	var err error
	if cfg.Port, err = strconv.Atoi(getenv("PORT", strconv.Itoa(DefaultPort))); err != nil {
		return cfg, Err(ErrInvalidConfig, err, "PORT")
	}
	if cfg.EntitlementTTL, err = parseDuration(getenv("ENTITLEMENT_TTL", ""), DefaultEntitlementTTL); err != nil {
		return cfg, Err(ErrInvalidConfig, err, "ENTITLEMENT_TTL")
	}
	if cfg.SweepInterval, err = parseDuration(getenv("SWEEP_INTERVAL", ""), DefaultSweepInterval); err != nil {
		return cfg, Err(ErrInvalidConfig, err, "SWEEP_INTERVAL")
	}
	trialDays, err := strconv.Atoi(getenv("TRIAL_DAYS", strconv.Itoa(DefaultTrialDays)))
	if err != nil {
		return cfg, Err(ErrInvalidConfig, err, "TRIAL_DAYS")
	}
	cfg.TrialDuration = time.Duration(trialDays) * 24 * time.Hour

	if v := os.Getenv("CHECKOUT_USER_ID_EXPR"); v != "" {
		cfg.Checkout.UserIDExpr = v
	}
	if v := os.Getenv("CHECKOUT_STATUS_EXPR"); v != "" {
		cfg.Checkout.StatusExpr = v
	}
	if v := os.Getenv("CHECKOUT_PLAN_EXPR"); v != "" {
		cfg.Checkout.PlanExpr = v
	}
	if v := os.Getenv("CHECKOUT_PERIOD_END_EXPR"); v != "" {
		cfg.Checkout.PeriodEndExpr = v
	}
	return cfg, cfg.Validate()
}

func (c ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be in 1..65535", ErrInvalidConfig)
	}
	if c.EntitlementTTL <= 0 {
		return fmt.Errorf("%w: entitlement_ttl must be positive", ErrInvalidConfig)
	}
	if c.EntitlementTTL > MaxEntitlementTTL {
		return fmt.Errorf("%w: entitlement_ttl must be at most %s", ErrInvalidConfig, MaxEntitlementTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidConfig)
	}
	if c.TrialDuration <= 0 {
		return fmt.Errorf("%w: trial duration must be positive", ErrInvalidConfig)
	}
	if c.Checkout.UserIDExpr == "" {
		return fmt.Errorf("%w: checkout user_id expression is required", ErrInvalidConfig)
	}
	return nil
}

// ValidateHTTP adds the checks only the HTTP service needs on top of Validate.
// Headless consumers (the SQS checkout Lambda) never serve admin routes.
func (c ServiceConfig) ValidateHTTP() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.AdminKey) < AdminKeyMinLength {
		return fmt.Errorf("%w: admin key must be at least %d characters", ErrInvalidConfig, AdminKeyMinLength)
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// getenv retrieves the value of the environment variable named by the key.
func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
