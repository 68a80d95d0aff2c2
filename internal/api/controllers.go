package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	lastSync := make(map[string]string, len(s.Exchanges))
	for _, ex := range s.Exchanges {
		if t := s.Store.LastSync(ex); !t.IsZero() {
			lastSync[ex] = t.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"paperTrading": s.Meta.PaperTrading,
		"mockFeed":     s.Meta.UseMockFeed,
		"version":      s.Meta.Version,
		"exchanges":    s.Exchanges,
		"lastSync":     lastSync,
	})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Coord.StrategyInfos()})
}

func (s *Server) pauseStrategy(c *gin.Context) {
	s.toggleStrategy(c, true)
}

func (s *Server) resumeStrategy(c *gin.Context) {
	s.toggleStrategy(c, false)
}

func (s *Server) toggleStrategy(c *gin.Context, disabled bool) {
	name := c.Param("name")
	pair := c.Query("pair")
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "MISSING_PAIR",
			"error": "pair query parameter is required",
		})
		return
	}
	if err := s.Coord.SetDisabled(name, pair, disabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "STRATEGY_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "pair": pair, "disabled": disabled})
}

func (s *Server) getOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	orders, err := s.DB.RecentOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "DB_ERROR",
			"error": "could not load orders",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getPortfolio(c *gin.Context) {
	out := make(map[string]map[string]string, len(s.Exchanges))
	for _, ex := range s.Exchanges {
		balances := s.Store.Balances(ex)
		m := make(map[string]string, len(balances))
		for cur, amt := range balances {
			m[cur] = amt.String()
		}
		out[ex] = m
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (s *Server) getPositions(c *gin.Context) {
	out := make(map[string]any, len(s.Exchanges))
	for _, ex := range s.Exchanges {
		out[ex] = s.Store.Positions(ex)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}
