package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcome labels
const (
	OutcomeSuccess          = "success"
	OutcomeInvalid          = "invalid_credentials"
	OutcomeTemporaryLock    = "temporary_lock"
	OutcomePermanentLock    = "permanent_lock"
	OutcomeRateLimited      = "rate_limited"
	OutcomeStoreUnavailable = "store_unavailable"
)

var (
	// loginAttemptsTotal counts login attempts by terminal outcome
	loginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberarcade_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// lockoutsEngagedTotal counts lockout transitions
	lockoutsEngagedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberarcade_lockouts_engaged_total",
			Help: "Total number of account lockouts engaged by stage",
		},
		[]string{"stage", "permanent"},
	)

	rateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberarcade_rate_limit_rejections_total",
			Help: "Total number of attempts rejected by the per-origin rate limiter",
		},
		[]string{"scope"},
	)

	rateLimitStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyberarcade_rate_limit_store_errors_total",
			Help: "Total number of rate window store failures (requests allowed through)",
		},
	)

	notificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberarcade_notification_failures_total",
			Help: "Total number of notification deliveries that failed",
		},
		[]string{"kind"},
	)

	auditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cyberarcade_audit_write_failures_total",
			Help: "Total number of audit trail writes that failed",
		},
	)

	adminOverridesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberarcade_admin_overrides_total",
			Help: "Total number of administrator overrides by action",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(loginAttemptsTotal)
	prometheus.MustRegister(lockoutsEngagedTotal)
	prometheus.MustRegister(rateLimitRejectionsTotal)
	prometheus.MustRegister(rateLimitStoreErrorsTotal)
	prometheus.MustRegister(notificationFailuresTotal)
	prometheus.MustRegister(auditFailuresTotal)
	prometheus.MustRegister(adminOverridesTotal)
}

func RecordLoginOutcome(outcome string) {
	loginAttemptsTotal.WithLabelValues(outcome).Inc()
}

func RecordLockoutEngaged(stage int, permanent bool) {
	lockoutsEngagedTotal.WithLabelValues(strconv.Itoa(stage), strconv.FormatBool(permanent)).Inc()
}

func RecordRateLimitRejection(scope string) {
	rateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

func RecordRateLimitStoreError() {
	rateLimitStoreErrorsTotal.Inc()
}

func RecordNotificationFailure(kind string) {
	notificationFailuresTotal.WithLabelValues(kind).Inc()
}

func RecordAuditFailure() {
	auditFailuresTotal.Inc()
}

func RecordAdminOverride(action string) {
	adminOverridesTotal.WithLabelValues(action).Inc()
}

// GetLoginAttemptsTotal returns the login outcome counter for testing.
func GetLoginAttemptsTotal() *prometheus.CounterVec {
	return loginAttemptsTotal
}

// GetLockoutsEngagedTotal returns the lockout counter for testing.
func GetLockoutsEngagedTotal() *prometheus.CounterVec {
	return lockoutsEngagedTotal
}

// GetRateLimitRejectionsTotal returns the rejection counter for testing.
func GetRateLimitRejectionsTotal() *prometheus.CounterVec {
	return rateLimitRejectionsTotal
}

// GetRateLimitStoreErrorsTotal returns the store error counter for testing.
func GetRateLimitStoreErrorsTotal() prometheus.Counter {
	return rateLimitStoreErrorsTotal
}

// GetNotificationFailuresTotal returns the notification failure counter for testing.
func GetNotificationFailuresTotal() *prometheus.CounterVec {
	return notificationFailuresTotal
}

// GetAuditFailuresTotal returns the audit failure counter for testing.
func GetAuditFailuresTotal() prometheus.Counter {
	return auditFailuresTotal
}

// GetAdminOverridesTotal returns the admin override counter for testing.
func GetAdminOverridesTotal() *prometheus.CounterVec {
	return adminOverridesTotal
}
