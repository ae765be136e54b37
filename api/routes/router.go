package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emiliogarza/libraria-backend/api/controllers"
	"github.com/emiliogarza/libraria-backend/api/middleware"
	"github.com/emiliogarza/libraria-backend/internal/circulation"
	"github.com/emiliogarza/libraria-backend/internal/fines"
	"github.com/emiliogarza/libraria-backend/internal/inventory"
	"github.com/emiliogarza/libraria-backend/internal/loans"
	"github.com/emiliogarza/libraria-backend/internal/members"
	"github.com/emiliogarza/libraria-backend/internal/reports"
	"github.com/emiliogarza/libraria-backend/internal/reservations"
	"github.com/emiliogarza/libraria-backend/pkg/config"
	"github.com/emiliogarza/libraria-backend/pkg/db"
	"github.com/emiliogarza/libraria-backend/pkg/logger"
	pkgredis "github.com/emiliogarza/libraria-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	coordinator circulation.Coordinator,
	loansSvc loans.Service,
	reservationsSvc reservations.Service,
	finesSvc fines.Service,
	inventorySvc inventory.Service,
	membersSvc members.Service,
	reportsSvc reports.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	// A typed-nil client must not reach the middleware as a non-nil interface.
	var idemStore pkgredis.IdempotencyStore
	var redisPinger pkgredis.Pinger
	if redisClient != nil {
		idemStore = redisClient
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", controllers.Checkout(coordinator, logg))
			r.Get("/{loanId}", controllers.LoanDetail(loansSvc, logg))
			r.Post("/{loanId}/return", controllers.ReturnLoan(coordinator, logg))
			r.Post("/{loanId}/renew", controllers.RenewLoan(coordinator, logg))
			r.Post("/{loanId}/lost", controllers.ReportLost(coordinator, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(coordinator, logg))
			r.Get("/{reservationId}", controllers.ReservationDetail(reservationsSvc, logg))
			r.Post("/{reservationId}/cancel", controllers.CancelReservation(coordinator, logg))
		})

		r.Route("/fines", func(r chi.Router) {
			r.Post("/{fineId}/pay", controllers.PayFine(coordinator, logg))
			r.Post("/{fineId}/waive", controllers.WaiveFine(coordinator, logg))
		})

		r.Route("/copies", func(r chi.Router) {
			r.Post("/", controllers.AddCopy(inventorySvc, logg))
			r.Get("/{copyId}", controllers.CopyDetail(inventorySvc, logg))
			r.Post("/{copyId}/repair", controllers.SendCopyToRepair(inventorySvc, logg))
			r.Post("/{copyId}/repaired", controllers.FinishCopyRepair(inventorySvc, logg))
		})

		r.Get("/books/{bookId}/copies/available", controllers.AvailableCopies(reportsSvc, logg))
		r.Get("/reports/overdue", controllers.OverdueLoans(reportsSvc, logg))

		r.Route("/members/{memberId}", func(r chi.Router) {
			r.Get("/", controllers.MemberDetail(membersSvc, logg))
			r.Get("/loans", controllers.MemberLoans(loansSvc, logg))
			r.Get("/reservations", controllers.MemberReservations(reservationsSvc, logg))
			r.Get("/fines", controllers.MemberFines(finesSvc, logg))
			r.Get("/activity", controllers.MemberActivity(reportsSvc, logg))
		})
	})

	return r
}
