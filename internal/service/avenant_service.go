package service

import (
	"context"
	"strings"

	"devisbtp/internal/dto"
	"devisbtp/internal/model"
	"devisbtp/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AvenantService interface {
	Creer(ctx context.Context, chantierID uuid.UUID, req dto.CreerAvenantRequest) (*dto.AvenantResponse, error)
	Lister(ctx context.Context, chantierID uuid.UUID) ([]dto.AvenantResponse, error)
}

type avenantService struct {
	repo         repository.AvenantRepository
	chantierRepo repository.ChantierRepository
}

func NewAvenantService(repo repository.AvenantRepository, chantierRepo repository.ChantierRepository) AvenantService {
	return &avenantService{repo: repo, chantierRepo: chantierRepo}
}

// Creer numbers the avenant after the chantier's last one. The chantier row
// lock serialises concurrent creations.
func (s *avenantService) Creer(ctx context.Context, chantierID uuid.UUID, req dto.CreerAvenantRequest) (*dto.AvenantResponse, error) {
	a := model.Avenant{
		ID:         uuid.New(),
		ChantierID: chantierID,
		Motif:      strings.TrimSpace(req.Motif),
		MontantHT:  decimal.Zero,
	}
	for _, l := range req.Lignes {
		a.Lignes = append(a.Lignes, model.LigneAvenant{
			ID:          uuid.New(),
			AvenantID:   a.ID,
			Description: l.Description,
			Montant:     l.Montant.Round(2),
		})
		a.MontantHT = a.MontantHT.Add(l.Montant.Round(2))
	}

	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.chantierRepo.LockTx(ctx, tx, chantierID); err != nil {
			return notFound(err, "chantier "+chantierID.String())
		}
		max, err := s.repo.MaxNumeroTx(ctx, tx, chantierID)
		if err != nil {
			return err
		}
		a.Numero = max + 1
		return s.repo.CreateTx(ctx, tx, &a)
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("chantier_id", chantierID.String()).
		Int("numero", a.Numero).
		Str("montant_ht", a.MontantHT.String()).
		Msg("avenant créé")
	resp := avenantToResponse(&a)
	return &resp, nil
}

func (s *avenantService) Lister(ctx context.Context, chantierID uuid.UUID) ([]dto.AvenantResponse, error) {
	avenants, err := s.repo.ListByChantier(ctx, chantierID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.AvenantResponse, 0, len(avenants))
	for i := range avenants {
		out = append(out, avenantToResponse(&avenants[i]))
	}
	return out, nil
}

func avenantToResponse(a *model.Avenant) dto.AvenantResponse {
	resp := dto.AvenantResponse{
		ID:         a.ID.String(),
		ChantierID: a.ChantierID.String(),
		Numero:     a.Numero,
		Motif:      a.Motif,
		MontantHT:  a.MontantHT,
		Lignes:     make([]dto.LigneAvenantResponse, 0, len(a.Lignes)),
	}
	for _, l := range a.Lignes {
		resp.Lignes = append(resp.Lignes, dto.LigneAvenantResponse{
			ID:          l.ID.String(),
			Description: l.Description,
			Montant:     l.Montant,
		})
	}
	return resp
}
