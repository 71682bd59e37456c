package handler

import (
	"net/http"

	"devisbtp/internal/dto"
	"devisbtp/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DevisHandler struct {
	svc       service.DevisService
	recalculs service.RecalculService
}

func NewDevisHandler(svc service.DevisService, recalculs service.RecalculService) *DevisHandler {
	return &DevisHandler{svc: svc, recalculs: recalculs}
}

// Totaux godoc
// @Summary      Totaux d'un devis
// @Description  Arbre chiffré du devis: lignes, sous-totaux, lignes spéciales appliquées en cascade, HT, TVA et TTC.
// @Tags         devis
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "UUID du devis"
// @Success      200 {object} dto.TotauxResponse
// @Failure      404 {object} apierror.APIError
// @Failure      422 {object} apierror.LineError
// @Router       /v1/devis/{id}/totaux [get]
func (h *DevisHandler) Totaux(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.CalculerTotaux(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Recalculer godoc
// @Summary      Recalculer un devis
// @Description  Persiste les totaux arrondis et la numérotation régénérée. Idempotent.
// @Tags         devis
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "UUID du devis"
// @Success      200 {object} dto.RecalculResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/devis/{id}/recalcul [post]
func (h *DevisHandler) Recalculer(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Recalculer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AjouterLigneSpeciale godoc
// @Summary      Ajouter une ligne spéciale
// @Tags         devis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                          true "UUID du devis"
// @Param        body body     dto.AjouterLigneSpecialeRequest true "Ligne spéciale"
// @Success      201  {object} dto.LigneSpecialeResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.LineError
// @Router       /v1/devis/{id}/lignes-speciales [post]
func (h *DevisHandler) AjouterLigneSpeciale(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.AjouterLigneSpecialeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AjouterLigneSpeciale(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DevisHandler) SupprimerLigneSpeciale(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	ligneID, ok := paramUUID(c, "ligne_id")
	if !ok {
		return
	}
	if err := h.svc.SupprimerLigneSpeciale(c.Request.Context(), id, ligneID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Exporter godoc
// @Summary      Export Excel du devis
// @Tags         devis
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        id  path string true "UUID du devis"
// @Success      200 {file} binary
// @Failure      404 {object} apierror.APIError
// @Router       /v1/devis/{id}/export [get]
func (h *DevisHandler) Exporter(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	buf, name, err := h.svc.ExporterExcel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// RecalculerPrix copies current catalog prices onto a brouillon devis.
func (h *DevisHandler) RecalculerPrix(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.recalculs.RecalculerPrixDevis(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
