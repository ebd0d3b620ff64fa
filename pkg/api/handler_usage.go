package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultStatsDays = 7

// dailyUsage handles GET /api/v1/usage/daily?date=YYYY-MM-DD. Date defaults
// to today.
func (s *Server) dailyUsage(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		s.badRequest(c, "dailyUsage", "date must be YYYY-MM-DD")
		return
	}

	rows, err := s.usage.GetDailyUsage(c.Request.Context(), userID(c), date)
	if err != nil {
		s.failJSON(c, "dailyUsage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "usage": rows})
}

// usageStats handles GET /api/v1/usage/stats?days=N.
func (s *Server) usageStats(c *gin.Context) {
	days := defaultStatsDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			s.badRequest(c, "usageStats", "days must be an integer between 1 and 365")
			return
		}
		days = n
	}

	stats, err := s.usage.GetDetailedStats(c.Request.Context(), userID(c), days)
	if err != nil {
		s.failJSON(c, "usageStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
