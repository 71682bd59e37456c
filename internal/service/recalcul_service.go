package service

import (
	"context"
	"errors"

	"devisbtp/internal/dto"
	"devisbtp/internal/model"
	"devisbtp/internal/pricing"
	"devisbtp/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RecalculService recomputes stored unit prices on explicit request only.
// Running it twice in a row changes nothing the second time.
type RecalculService interface {
	// RecalculerCatalogue derives every catalog detail line price from its
	// composition.
	RecalculerCatalogue(ctx context.Context) (*dto.RecalculPrixResponse, error)
	// RecalculerPrixDevis copies current catalog prices onto the lines of a
	// brouillon devis.
	RecalculerPrixDevis(ctx context.Context, devisID uuid.UUID) (*dto.RecalculPrixResponse, error)
}

type recalculService struct {
	catalogue repository.CatalogueRepository
	devis     repository.DevisRepository
}

func NewRecalculService(catalogue repository.CatalogueRepository, devis repository.DevisRepository) RecalculService {
	return &recalculService{catalogue: catalogue, devis: devis}
}

func (s *recalculService) RecalculerCatalogue(ctx context.Context) (*dto.RecalculPrixResponse, error) {
	lignes, err := s.catalogue.ListLignesDetail(ctx)
	if err != nil {
		return nil, err
	}
	out := &dto.RecalculPrixResponse{Examinees: len(lignes)}
	err = runTx(ctx, s.catalogue.DB(), func(tx *gorm.DB) error {
		for _, l := range lignes {
			prix, err := pricing.PrixUnitaire(composition(l))
			if err != nil {
				var invalid *pricing.InvalidLineError
				if errors.As(err, &invalid) {
					invalid.ID = l.ID.String()
				}
				return err
			}
			if prix.Equal(l.Prix) {
				continue
			}
			if err := s.catalogue.UpdatePrixTx(ctx, tx, l.ID, prix); err != nil {
				return err
			}
			out.Modifiees++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("examinees", out.Examinees).Int("modifiees", out.Modifiees).Msg("recalcul catalogue terminé")
	return out, nil
}

func (s *recalculService) RecalculerPrixDevis(ctx context.Context, devisID uuid.UUID) (*dto.RecalculPrixResponse, error) {
	out := &dto.RecalculPrixResponse{}
	err := runTx(ctx, s.devis.DB(), func(tx *gorm.DB) error {
		d, err := s.devis.LockTx(ctx, tx, devisID)
		if err != nil {
			return notFound(err, "devis "+devisID.String())
		}
		if d.Statut != model.DevisBrouillon {
			return ErrDevisFige
		}
		lignes, err := s.catalogue.ListDevisLignesTx(ctx, tx, devisID)
		if err != nil {
			return err
		}
		out.Examinees = len(lignes)
		for _, l := range lignes {
			if l.LigneDetail == nil || l.PrixUnitaire.Equal(l.LigneDetail.Prix) {
				continue
			}
			if err := s.catalogue.UpdateDevisLignePrixTx(ctx, tx, l.ID, l.LigneDetail.Prix); err != nil {
				return err
			}
			out.Modifiees++
		}
		if out.Modifiees == 0 {
			return nil
		}
		return s.devis.BumpVersionTx(ctx, tx, devisID)
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("devis_id", devisID.String()).
		Int("modifiees", out.Modifiees).
		Msg("recalcul des prix du devis terminé")
	return out, nil
}

func composition(l model.LigneDetail) pricing.Composition {
	return pricing.Composition{
		MainOeuvre: l.CoutMainOeuvre,
		Materiel:   l.CoutMateriel,
		TauxFixe:   l.TauxFixe,
		Marge:      l.Marge,
	}
}
