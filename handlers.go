package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"codewatch/models"
	"codewatch/pkg/store"
)

// serverStore is the slice of the code store the HTTP layer needs.
type serverStore interface {
	UnusedCodes() ([]models.Code, error)
	MarkCodeUsed(code string) (bool, error)
	Stats() (store.Stats, error)
}

// serverChecker is the slice of the checker the HTTP layer needs.
type serverChecker interface {
	RunCheck() CheckResult
	TestImage(url string) (TestResult, error)
	LastCheck() time.Time
}

// Server maps the command surface onto the core operations.
type Server struct {
	store   serverStore
	checker serverChecker
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.POST("/check", s.checkHandler)
	r.GET("/codes", s.listCodesHandler)
	r.POST("/codes/:code/use", s.useCodeHandler)
	r.GET("/stats", s.statsHandler)
	r.POST("/extract/test", s.testExtractionHandler)
}

// checkHandler runs a check cycle immediately.
func (s *Server) checkHandler(c *gin.Context) {
	res := s.checker.RunCheck()
	if res.Skipped {
		c.JSON(http.StatusConflict, gin.H{"error": "a check is already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_codes": res.NewCodes, "count": len(res.NewCodes)})
}

// listCodesHandler returns unused codes, newest first.
func (s *Server) listCodesHandler(c *gin.Context) {
	codes, err := s.store.UnusedCodes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, codes)
}

// useCodeHandler marks a code used. Absent or already-used codes are a
// negative result, not a server error.
func (s *Server) useCodeHandler(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code missing"})
		return
	}
	changed, err := s.store.MarkCodeUsed(code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if !changed {
		c.JSON(http.StatusNotFound, gin.H{"error": "code not found or already used"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "used": true})
}

// statsHandler reports aggregate counts plus the last check time.
func (s *Server) statsHandler(c *gin.Context) {
	st, err := s.store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	resp := gin.H{
		"total":            st.Total,
		"unused":           st.Unused,
		"used":             st.Used,
		"discovered_today": st.DiscoveredToday,
	}
	if last := s.checker.LastCheck(); !last.IsZero() {
		resp["last_check"] = last.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// testExtractionHandler runs one image URL through the full pipeline and
// returns the raw text, filtered text and codes found.
func (s *Server) testExtractionHandler(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.checker.TestImage(req.URL)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
