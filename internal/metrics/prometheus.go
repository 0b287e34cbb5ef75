package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	ExchangeSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_exchanges_success_total",
		Help: "Total number of successful identity exchanges.",
	})
	ExchangeFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_exchanges_failure_total",
		Help: "Total number of failed identity exchanges.",
	})
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_sessions_created_total",
		Help: "Total number of user sessions created.",
	})
	UsersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_users_created_total",
		Help: "Total number of users created.",
	})
	UsersVerifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_users_verified_total",
		Help: "Total number of users transitioned to verified.",
	})
	InvitesRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_invites_redeemed_total",
		Help: "Total number of invites redeemed.",
	})
	InvitesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_invites_expired_total",
		Help: "Total number of invites transitioned to expired.",
	})
	EventPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usermgmt_event_publish_failures_total",
		Help: "Total number of event bus publish failures.",
	})
)

// InitCustomMetrics registers the custom Prometheus metrics. It should be
// called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	for _, c := range []prometheus.Collector{
		ExchangeSuccessTotal,
		ExchangeFailureTotal,
		SessionsCreatedTotal,
		UsersCreatedTotal,
		UsersVerifiedTotal,
		InvitesRedeemedTotal,
		InvitesExpiredTotal,
		EventPublishFailures,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register Prometheus metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
