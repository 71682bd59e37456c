package handler

import (
	"errors"
	"net/http"
	"reflect"

	"devisbtp/internal/apierror"
	"devisbtp/internal/billing"
	"devisbtp/internal/middleware"
	"devisbtp/internal/normalize"
	"devisbtp/internal/numbering"
	"devisbtp/internal/pricing"
	"devisbtp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, max=100 work on amounts and percentages.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails; the
// caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalide: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// paramUUID parses a path parameter; on failure it writes a 400 and
// returns false.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("identifiant invalide: "+name))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps domain errors onto HTTP statuses:
//
//	404  missing entity or PDF
//	409  state conflicts (frozen devis, wrong statut, period ordering, dangling scope)
//	422  rejected lines and percentages, with the offending line named
//	400  missing correction motive
//	500  anything else, logged and never echoed
func respondError(c *gin.Context, err error) {
	var (
		mono     *billing.MonotonicityError
		missing  *billing.MissingLineError
		unknown  *billing.UnknownLineError
		value    *billing.ValueError
		invalid  *pricing.InvalidLineError
		noBase   *pricing.MissingBaseError
		shape    *normalize.ShapeError
		dupIndex *numbering.DuplicateIndexError
	)
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrPDFIndisponible):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))

	case errors.As(err, &mono):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), string(mono.Kind), mono.ID))
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), string(missing.Kind), missing.ID))
	case errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), string(unknown.Kind), unknown.ID))
	case errors.As(err, &value):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), string(value.Kind), value.ID))
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), invalid.Entity, invalid.ID))
	case errors.As(err, &shape):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewLine(err.Error(), shape.Entity, shape.ID))
	case errors.Is(err, billing.ErrValidation), errors.Is(err, service.ErrPeriodeInvalide):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))

	case errors.As(err, &noBase):
		c.JSON(http.StatusConflict, apierror.NewLine(err.Error(), "ligne_speciale", noBase.LigneSpecialeID))
	case errors.As(err, &dupIndex):
		c.JSON(http.StatusConflict, apierror.NewLine(err.Error(), dupIndex.Kind, dupIndex.Other))
	case errors.Is(err, billing.ErrState),
		errors.Is(err, service.ErrDevisFige),
		errors.Is(err, service.ErrFormatHistorique),
		errors.Is(err, service.ErrPasDerniere),
		errors.Is(err, service.ErrPeriodeExistante),
		errors.Is(err, service.ErrPeriodeAnterieure),
		errors.Is(err, service.ErrChantierSansDevis),
		errors.Is(err, service.ErrDevisNonValide),
		errors.Is(err, numbering.ErrInvertedBounds),
		errors.Is(err, numbering.ErrIndexSature):
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusConflict, apierror.New("conflit: enregistrement déjà existant"))

	case errors.Is(err, billing.ErrMotifRequis):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))

	default:
		log.Error().
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Err(err).
			Msg("unhandled service error")
		c.JSON(http.StatusInternalServerError, apierror.New("Erreur interne du serveur"))
	}
}
