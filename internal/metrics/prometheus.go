package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are usable as soon as the package loads; Register only makes
// them visible on the scrape endpoint.
var (
	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_auth_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_issued_total",
		Help: "Total number of access/refresh token pairs issued.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_refreshed_total",
		Help: "Total number of successful refresh-token rotations.",
	})
	RefreshReuseRejectTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_refresh_reuse_rejects_total",
		Help: "Total number of rejected attempts to redeem an already-rotated refresh token.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_revoked_total",
		Help: "Total number of tokens invalidated via the revocation endpoint.",
	})
	APIKeyValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_api_key_validations_total",
		Help: "Total number of API key validations by result.",
	}, []string{"result"})
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_sessions_created_total",
		Help: "Total number of browser sessions created.",
	})
)

// Register registers all custom metrics with the given registerer. It should
// be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for name, c := range map[string]prometheus.Collector{
		"AuthCodesIssuedTotal":    AuthCodesIssuedTotal,
		"TokensIssuedTotal":       TokensIssuedTotal,
		"TokensRefreshedTotal":    TokensRefreshedTotal,
		"RefreshReuseRejectTotal": RefreshReuseRejectTotal,
		"TokensRevokedTotal":      TokensRevokedTotal,
		"APIKeyValidationsTotal":  APIKeyValidationsTotal,
		"SessionsCreatedTotal":    SessionsCreatedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}
