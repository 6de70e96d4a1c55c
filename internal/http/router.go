// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carpool/internal/ai"
	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/infra"
)

type RouterDeps struct {
	Users    handlers.IdentityService
	Rides    handlers.RideService
	Bookings handlers.BookingService
	Reviews  handlers.ReviewService
	Quota    handlers.PromptQuota
	// Parser is optional; without it prompt search answers 404.
	Parser     ai.PromptParser
	Verifier   infra.TokenVerifier
	// Provisioner, when set, creates the user row on a caller's first
	// verified token. Used with externally issued tokens.
	Provisioner middleware.Provisioner
	Log        *zap.Logger
	Production bool
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(deps.Log),
		middleware.Logging(deps.Log),
		middleware.Metrics(),
	)

	opts := handlers.Options{Production: deps.Production}
	users := handlers.NewUserHandler(deps.Users, opts)
	rides := handlers.NewRideHandler(deps.Rides, opts)
	bookings := handlers.NewBookingHandler(deps.Bookings, opts)
	reviews := handlers.NewReviewHandler(deps.Reviews, opts)
	search := handlers.NewSearchHandler(deps.Rides, deps.Quota, deps.Parser, opts)
	auth := []gin.HandlerFunc{middleware.Auth(deps.Verifier)}
	if deps.Provisioner != nil {
		auth = append(auth, middleware.Provision(deps.Provisioner))
	}

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/register", users.Register)
	r.POST("/auth/login", users.Login)

	u := r.Group("/users", auth...)
	u.GET("/me", users.Me)
	u.PUT("/me/mode", users.SwitchMode)
	u.GET("/:userId", users.Profile)

	r.GET("/rides", rides.List)
	r.GET("/rides/:rideId", rides.Get)

	ra := r.Group("/rides", auth...)
	ra.POST("", rides.Create)
	ra.DELETE("/:rideId", rides.Delete)
	ra.GET("/my-rides", bookings.MyRides)
	ra.POST("/search/prompt", search.Prompt)
	ra.POST("/:rideId/book", bookings.Book)
	ra.POST("/:rideId/complete", bookings.Complete)
	ra.GET("/:rideId/bookings", bookings.ListByRide)
	ra.GET("/bookings/:bookingId", bookings.Get)
	ra.POST("/bookings/:bookingId/confirm", bookings.Confirm)
	ra.POST("/bookings/:bookingId/reject", bookings.Reject)

	rv := r.Group("/reviews", auth...)
	rv.POST("", reviews.Submit)
	rv.GET("/user/:userId", reviews.ListForUser)

	return r
}
