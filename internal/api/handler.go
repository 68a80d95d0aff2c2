package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"advisor-core/internal/advisor"
	"advisor-core/internal/events"
	"advisor-core/internal/portfolio"
	"advisor-core/pkg/db"
)

// Server exposes the operational HTTP surface: inspect strategies, orders and
// the portfolio, pause and resume strategies.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Coord     *advisor.Coordinator
	Store     *portfolio.Store
	Exchanges []string
	JWTSecret string
	Meta      SystemMeta

	httpSrv *http.Server
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	PaperTrading bool
	UseMockFeed  bool
	Version      string
}

func NewServer(bus *events.Bus, database *db.Database, coord *advisor.Coordinator,
	store *portfolio.Store, exchanges []string, meta SystemMeta, jwtSecret string) *Server {

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Coord:     coord,
		Store:     store,
		Exchanges: exchanges,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/system/status", s.getSystemStatus)
			protected.GET("/strategies", s.getStrategies)
			protected.POST("/strategies/:name/pause", s.pauseStrategy)
			protected.POST("/strategies/:name/resume", s.resumeStrategy)
			protected.GET("/orders", s.getOrders)
			protected.GET("/portfolio", s.getPortfolio)
			protected.GET("/positions", s.getPositions)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
