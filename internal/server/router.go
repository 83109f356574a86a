package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	anonymousSessionHeader = "X-Anonymous-Session"
	defaultServiceName     = "dong"
	heartbeatInterval      = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingEffectiveView    = errors.New("effective view dependency required")
	errMissingRevisionService  = errors.New("revision service dependency required")
	errMissingLedger           = errors.New("sync ledger dependency required")
	errInvalidAllowedOrigin    = errors.New("allowed origin must be an http or https origin")
)

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	Sessions            *auth.SessionValidator
	AnonymousCookieName string
	View                *revisions.EffectiveView
	Revisions           *revisions.Service
	Ledger              *snapshots.Ledger
	Events              *ReviewDispatcher
	Logger              *zap.Logger
	ServiceName         string
	HeartbeatInterval   time.Duration
	// AllowedOrigins lists the browser origins that may send credentialed requests.
	// When empty, any origin may call the API but browsers do not attach cookies.
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.View == nil {
		return nil, errMissingEffectiveView
	}
	if deps.Revisions == nil {
		return nil, errMissingRevisionService
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}

	if err := validateAllowedOrigins(deps.AllowedOrigins); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewReviewDispatcher()
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = heartbeatInterval
	}

	handler := &httpHandler{
		sessions:      deps.Sessions,
		anonymousName: deps.AnonymousCookieName,
		view:          deps.View,
		revisions:     deps.Revisions,
		ledger:        deps.Ledger,
		events:        events,
		logger:        logger,
		heartbeat:     heartbeat,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(handler.identify)

	router.GET("/characters", handler.handleGetCharacters)
	router.GET("/characters/:character", handler.handleGetCharacter)
	router.GET("/characters/:character/revisions", handler.handleHistory)
	router.POST("/characters/:character/revisions", handler.handleSubmit)

	router.GET("/revisions/pending", handler.handleListPending)
	router.GET("/revisions/recent", handler.handleRecentlyApproved)
	router.GET("/revisions/:id", handler.handleGetRevision)
	router.GET("/revisions/:id/baseline", handler.handleBaseline)
	router.PUT("/revisions/:id", handler.handleAmend)

	reviewers := router.Group("/revisions")
	reviewers.Use(handler.requireReviewer)
	reviewers.GET("/events", handler.handleEvents)
	reviewers.POST("/:id/approve", handler.handleApprove)
	reviewers.POST("/:id/reject", handler.handleReject)

	router.GET("/ledger", handler.handleLedger)
	router.GET("/ledger/:corpus", handler.handleLedgerEntry)

	return router, nil
}

type httpHandler struct {
	sessions      *auth.SessionValidator
	anonymousName string
	view          *revisions.EffectiveView
	revisions     *revisions.Service
	ledger        *snapshots.Ledger
	events        *ReviewDispatcher
	logger        *zap.Logger
	heartbeat     time.Duration
}

func validateAllowedOrigins(origins []string) error {
	for _, origin := range origins {
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://") {
			return fmt.Errorf("%w: %q", errInvalidAllowedOrigin, origin)
		}
	}
	return nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", anonymousSessionHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}
