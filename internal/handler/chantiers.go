package handler

import (
	"net/http"

	"devisbtp/internal/dto"
	"devisbtp/internal/service"

	"github.com/gin-gonic/gin"
)

type AvenantsHandler struct{ svc service.AvenantService }

func NewAvenantsHandler(svc service.AvenantService) *AvenantsHandler {
	return &AvenantsHandler{svc: svc}
}

// Creer godoc
// @Summary      Créer un avenant
// @Description  Numéroté à la suite des avenants existants du chantier.
// @Tags         chantiers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                  true "UUID du chantier"
// @Param        body body     dto.CreerAvenantRequest true "Lignes de l'avenant"
// @Success      201  {object} dto.AvenantResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/chantiers/{id}/avenants [post]
func (h *AvenantsHandler) Creer(c *gin.Context) {
	chantierID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CreerAvenantRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Creer(c.Request.Context(), chantierID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *AvenantsHandler) Lister(c *gin.Context) {
	chantierID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Lister(c.Request.Context(), chantierID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
