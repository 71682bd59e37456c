package handler

import (
	"net/http"
	"path/filepath"

	"devisbtp/internal/dto"
	"devisbtp/internal/service"

	"github.com/gin-gonic/gin"
)

type SituationsHandler struct{ svc service.SituationService }

func NewSituationsHandler(svc service.SituationService) *SituationsHandler {
	return &SituationsHandler{svc: svc}
}

// Creer godoc
// @Summary      Créer une situation
// @Description  Calcule la situation du mois à partir des pourcentages d'avancement cumulés. Seule une période postérieure à la dernière situation du chantier est acceptée.
// @Tags         situations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.CreerSituationRequest true "Avancements de la période"
// @Success      201  {object} dto.SituationResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.LineError
// @Router       /v1/situations [post]
func (h *SituationsHandler) Creer(c *gin.Context) {
	var req dto.CreerSituationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Creer(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Obtenir godoc
// @Summary      Détail d'une situation
// @Tags         situations
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "UUID de la situation"
// @Success      200 {object} dto.SituationResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/situations/{id} [get]
func (h *SituationsHandler) Obtenir(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Obtenir(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SituationsHandler) MettreAJour(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.MettreAJourSituationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.MettreAJour(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SituationsHandler) Supprimer(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Supprimer(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Valider godoc
// @Summary      Valider une situation
// @Description  Fige la situation; le PDF est généré de façon asynchrone puis envoyé au client.
// @Tags         situations
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "UUID de la situation"
// @Success      200 {object} dto.SituationResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/situations/{id}/valider [post]
func (h *SituationsHandler) Valider(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Valider(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SituationsHandler) Facturer(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Facturer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Corriger godoc
// @Summary      Corriger une situation
// @Description  Recalcule la dernière situation en brouillon en autorisant des pourcentages inférieurs à la période précédente. Le motif est obligatoire.
// @Tags         situations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                true "UUID de la situation"
// @Param        body body     dto.CorrectionRequest true "Motif et avancements corrigés"
// @Success      200  {object} dto.SituationResponse
// @Failure      400  {object} apierror.APIError
// @Router       /v1/situations/{id}/correction [post]
func (h *SituationsHandler) Corriger(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CorrectionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Corriger(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PDF godoc
// @Summary      Télécharger le PDF d'une situation
// @Tags         situations
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id  path string true "UUID de la situation"
// @Success      200 {file} binary
// @Failure      404 {object} apierror.APIError
// @Router       /v1/situations/{id}/pdf [get]
func (h *SituationsHandler) PDF(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	path, err := h.svc.ObtenirPDFPath(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// ListerParChantier godoc
// @Summary      Situations d'un chantier
// @Tags         chantiers
// @Produce      json
// @Security     BearerAuth
// @Param        id  path    string true "UUID du chantier"
// @Success      200 {array} dto.SituationResumeResponse
// @Router       /v1/chantiers/{id}/situations [get]
func (h *SituationsHandler) ListerParChantier(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListerParChantier(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
