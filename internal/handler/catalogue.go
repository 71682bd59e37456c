package handler

import (
	"net/http"

	"devisbtp/internal/apierror"
	"devisbtp/internal/dto"
	"devisbtp/internal/service"

	"github.com/gin-gonic/gin"
)

type CatalogueHandler struct {
	svc       service.CatalogueService
	recalculs service.RecalculService
}

func NewCatalogueHandler(svc service.CatalogueService, recalculs service.RecalculService) *CatalogueHandler {
	return &CatalogueHandler{svc: svc, recalculs: recalculs}
}

// ListerParties godoc
// @Summary Catalogue des parties
// @Tags catalogue
// @Produce json
// @Security BearerAuth
// @Param domaine query string false "Filtre par domaine"
// @Success 200 {array} dto.CataloguePartieResponse
// @Router /v1/catalogue/parties [get]
func (h *CatalogueHandler) ListerParties(c *gin.Context) {
	var filter dto.CatalogueFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.ListerParties(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecalculerPrix godoc
// @Summary Recalcul des prix du catalogue
// @Description Recalcule le prix de chaque ligne de détail depuis sa composition. Idempotent.
// @Tags catalogue
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.RecalculPrixResponse
// @Failure 422 {object} apierror.LineError
// @Router /v1/catalogue/recalcul-prix [post]
func (h *CatalogueHandler) RecalculerPrix(c *gin.Context) {
	resp, err := h.recalculs.RecalculerCatalogue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
