package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/altynaay/fieldops/internal/services"
	"github.com/altynaay/fieldops/pkg/response"
)

// DashboardHandler serves the workload summary and typeahead suggestions.
type DashboardHandler struct {
	dashboard   *services.DashboardService
	suggestions *services.SuggestionService
}

func NewDashboardHandler(dashboard *services.DashboardService, suggestions *services.SuggestionService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, suggestions: suggestions}
}

// GET /api/dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.dashboard.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /api/suggestions?field=customer_name&q=ac
func (h *DashboardHandler) Suggest(c *gin.Context) {
	items, err := h.suggestions.Suggest(requestContext(c), c.Query("field"), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}
