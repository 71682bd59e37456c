package service

import (
	"context"
	"slices"

	"devisbtp/internal/dto"
	"devisbtp/internal/model"
	"devisbtp/internal/numbering"
	"devisbtp/internal/repository"
)

type CatalogueService interface {
	ListerParties(ctx context.Context, filter dto.CatalogueFilter) ([]dto.CataloguePartieResponse, error)
}

type catalogueService struct {
	repo repository.CatalogueRepository
}

func NewCatalogueService(repo repository.CatalogueRepository) CatalogueService {
	return &catalogueService{repo: repo}
}

// ListerParties returns the catalog ordered by the leading numeral of each
// title ("2-Electricité" before "11-Plomberie").
func (s *catalogueService) ListerParties(ctx context.Context, filter dto.CatalogueFilter) ([]dto.CataloguePartieResponse, error) {
	parties, err := s.repo.ListParties(ctx, filter.Domaine)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(parties, func(a, b model.Partie) int {
		return numbering.NaturalCompare(a.Titre, b.Titre)
	})

	out := make([]dto.CataloguePartieResponse, 0, len(parties))
	for _, p := range parties {
		pr := dto.CataloguePartieResponse{
			ID:          p.ID.String(),
			Titre:       p.Titre,
			Domaine:     p.Domaine,
			SousParties: make([]dto.CatalogueSousPartieResponse, 0, len(p.SousParties)),
		}
		for _, sp := range p.SousParties {
			spr := dto.CatalogueSousPartieResponse{
				ID:           sp.ID.String(),
				Description:  sp.Description,
				LignesDetail: make([]dto.LigneDetailResponse, 0, len(sp.LignesDetail)),
			}
			for _, l := range sp.LignesDetail {
				spr.LignesDetail = append(spr.LignesDetail, dto.LigneDetailResponse{
					ID:             l.ID.String(),
					Description:    l.Description,
					Unite:          l.Unite,
					CoutMainOeuvre: l.CoutMainOeuvre,
					CoutMateriel:   l.CoutMateriel,
					TauxFixe:       l.TauxFixe,
					Marge:          l.Marge,
					Prix:           l.Prix,
				})
			}
			pr.SousParties = append(pr.SousParties, spr)
		}
		out = append(out, pr)
	}
	return out, nil
}
