package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jwoolee/beautylink-backend/api/controllers"
	"github.com/jwoolee/beautylink-backend/api/middleware"
	"github.com/jwoolee/beautylink-backend/internal/points"
	"github.com/jwoolee/beautylink-backend/internal/referrals"
	"github.com/jwoolee/beautylink-backend/pkg/config"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
	"github.com/jwoolee/beautylink-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisClient *redis.Client,
	pointsService points.Service,
	referralsService referrals.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	ingestPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.Ingest.RateLimitWindow,
		cfg.Ingest.RateLimitMax,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.RateLimit(ingestPolicy, redisClient, logg))
			r.Post("/completed", controllers.PaymentCompleted(pointsService, logg))
			r.Post("/refunded", controllers.PaymentRefunded(pointsService, logg))
		})

		r.Route("/users/{userId}/points", func(r chi.Router) {
			r.Get("/balance", controllers.PointsBalance(pointsService, logg))
			r.Get("/history", controllers.PointsHistory(pointsService, logg))
			r.Post("/redeem", controllers.PointsRedeem(pointsService, logg))
		})

		r.Post("/referrals", controllers.ReferralRegister(referralsService, logg))
		r.Get("/users/{userId}/referrals", controllers.ReferralList(referralsService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/users/{userId}", func(r chi.Router) {
			r.Post("/points/adjust", controllers.PointsAdjust(pointsService, logg))
			r.Post("/points/unfreeze", controllers.PointsUnfreeze(pointsService, logg))
			r.Put("/influencer", controllers.ReferralSetInfluencer(referralsService, logg))
		})
	})

	return r
}
