package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"devisbtp/internal/dto"
	"devisbtp/internal/infra"
	"devisbtp/internal/model"
	"devisbtp/internal/normalize"
	"devisbtp/internal/numbering"
	"devisbtp/internal/pricing"
	"devisbtp/internal/repository"
	"devisbtp/internal/tree"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrDevisFige is returned for structural writes on a devis that left the
// brouillon status.
var ErrDevisFige = errors.New("devis figé: seul un devis en brouillon peut être modifié")

// ErrFormatHistorique is returned when a flat special line is added to a devis
// still stored in the legacy JSON shape; mixing both shapes is refused.
var ErrFormatHistorique = errors.New("devis au format historique: ajout de ligne spéciale impossible")

type DevisService interface {
	CalculerTotaux(ctx context.Context, id uuid.UUID) (*dto.TotauxResponse, error)
	Recalculer(ctx context.Context, id uuid.UUID) (*dto.RecalculResponse, error)
	AjouterLigneSpeciale(ctx context.Context, id uuid.UUID, req dto.AjouterLigneSpecialeRequest) (*dto.LigneSpecialeResponse, error)
	SupprimerLigneSpeciale(ctx context.Context, id, ligneID uuid.UUID) error
	ExporterExcel(ctx context.Context, id uuid.UUID) (*bytes.Buffer, string, error)
}

type devisService struct {
	repo     repository.DevisRepository
	rdb      *redis.Client
	cacheTTL time.Duration
}

// NewDevisService wires the devis service. rdb may be nil: totals are then
// computed on every request.
func NewDevisService(repo repository.DevisRepository, rdb *redis.Client, cacheTTL time.Duration) DevisService {
	return &devisService{repo: repo, rdb: rdb, cacheTTL: cacheTTL}
}

func totauxCacheKey(id uuid.UUID, version int) string {
	return fmt.Sprintf("devis:totaux:%s:v%d", id, version)
}

// ── CalculerTotaux ────────────────────────────────────────────────────────────
// Read-only: normalise → order/number → aggregate. The result is cached per
// devis version; every structural write bumps the version.

func (s *devisService) CalculerTotaux(ctx context.Context, id uuid.UUID) (*dto.TotauxResponse, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "devis "+id.String())
	}
	key := totauxCacheKey(id, d.Version)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var resp dto.TotauxResponse
			if json.Unmarshal(cached, &resp) == nil {
				return &resp, nil
			}
		}
	}

	c, err := chiffrer(ctx, s.repo, nil, id)
	if err != nil {
		return nil, err
	}
	resp := totauxToResponse(c, d.Version)

	if s.rdb != nil {
		if data, err := json.Marshal(resp); err == nil {
			// best-effort; a cache miss only costs a recomputation
			_ = s.rdb.Set(ctx, key, data, s.cacheTTL).Err()
		}
	}
	return resp, nil
}

// ── Recalculer ────────────────────────────────────────────────────────────────
// Explicit, idempotent recomputation under the devis row lock:
//   1. lock the devis row
//   2. normalise, number and price
//   3. persist the regenerated numeros and the cent-rounded totals

func (s *devisService) Recalculer(ctx context.Context, id uuid.UUID) (*dto.RecalculResponse, error) {
	var resp dto.RecalculResponse
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "devis "+id.String())
		}
		c, err := chiffrer(ctx, s.repo, tx, id)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateNumerosTx(ctx, tx, numeros(c.Arbre, c.Report.Mode)); err != nil {
			return err
		}
		t := c.Result.Rounded()
		if err := s.repo.UpdateTotauxTx(ctx, tx, id, t.TotalHT, t.TVA, t.TTC); err != nil {
			return err
		}
		resp = dto.RecalculResponse{
			DevisID: id.String(),
			TotalHT: t.TotalHT,
			TVA:     t.TVA,
			TTC:     t.TTC,
			Version: d.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("devis_id", id.String()).Str("total_ht", resp.TotalHT.String()).Msg("devis recalculé")
	return &resp, nil
}

// ── Lignes spéciales ──────────────────────────────────────────────────────────

func (s *devisService) AjouterLigneSpeciale(ctx context.Context, id uuid.UUID, req dto.AjouterLigneSpecialeRequest) (*dto.LigneSpecialeResponse, error) {
	scope, err := tree.ParseScope(req.Scope)
	if err != nil {
		return nil, &pricing.InvalidLineError{Entity: "ligne_speciale", Reason: err.Error()}
	}
	kind, vt := tree.Kind(req.Type), tree.ValueType(req.ValueType)
	if !kind.Valid() || !vt.Valid() {
		return nil, &pricing.InvalidLineError{Entity: "ligne_speciale", Reason: "type ou type de valeur inconnu"}
	}
	if req.Value.IsNegative() {
		return nil, &pricing.InvalidLineError{Entity: "ligne_speciale", Reason: "valeur négative"}
	}

	var created model.LigneSpeciale
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "devis "+id.String())
		}
		if d.Statut != model.DevisBrouillon {
			return ErrDevisFige
		}
		c, err := chiffrer(ctx, s.repo, tx, id)
		if err != nil {
			return err
		}
		if c.Report.Mode == normalize.ModeLegacy {
			return ErrFormatHistorique
		}
		if !c.Arbre.Resolves(scope) {
			return &pricing.MissingBaseError{LigneSpecialeID: "nouvelle", Scope: scope.String()}
		}

		index, err := insertionIndex(c.Arbre.LignesSpecialesFor(scope), req.ApresID)
		if err != nil {
			return err
		}
		created = model.LigneSpeciale{
			ID:          uuid.New(),
			DevisID:     id,
			Description: strings.TrimSpace(req.Description),
			Scope:       scope.String(),
			Type:        string(kind),
			ValueType:   string(vt),
			Value:       req.Value,
			IndexGlobal: index,
			Styles:      datatypes.JSONMap(req.Styles),
		}
		if err := s.repo.CreateLigneSpecialeTx(ctx, tx, &created); err != nil {
			return err
		}
		return s.repo.BumpVersionTx(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return ligneSpecialeToResponse(&created), nil
}

// insertionIndex places a new special line after apresID, or at the end of
// its scope, without touching its siblings.
func insertionIndex(siblings []tree.LigneSpeciale, apresID *string) (decimal.Decimal, error) {
	sorted := numbering.SortLignesSpeciales(siblings)
	if len(sorted) == 0 {
		return numbering.Between(nil, nil)
	}
	if apresID == nil {
		last := sorted[len(sorted)-1].IndexGlobal
		return numbering.Between(&last, nil)
	}
	for i, l := range sorted {
		if l.ID != *apresID {
			continue
		}
		prev := l.IndexGlobal
		// Lines sharing prev's index are skipped: the new one goes after all of them.
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].IndexGlobal.GreaterThan(prev) {
				next := sorted[j].IndexGlobal
				return numbering.Between(&prev, &next)
			}
		}
		return numbering.Between(&prev, nil)
	}
	return decimal.Zero, &pricing.InvalidLineError{Entity: "ligne_speciale", ID: *apresID, Reason: "ligne de référence absente de la portée"}
}

func (s *devisService) SupprimerLigneSpeciale(ctx context.Context, id, ligneID uuid.UUID) error {
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "devis "+id.String())
		}
		if d.Statut != model.DevisBrouillon {
			return ErrDevisFige
		}
		if err := s.repo.DeleteLigneSpecialeTx(ctx, tx, id, ligneID); err != nil {
			return notFound(err, "ligne spéciale "+ligneID.String())
		}
		return s.repo.BumpVersionTx(ctx, tx, id)
	})
}

// ── Export ────────────────────────────────────────────────────────────────────

func (s *devisService) ExporterExcel(ctx context.Context, id uuid.UUID) (*bytes.Buffer, string, error) {
	c, err := chiffrer(ctx, s.repo, nil, id)
	if err != nil {
		return nil, "", err
	}
	buf, err := infra.BuildDevisWorkbook(c.Structure.Devis.Numero, c.Result)
	if err != nil {
		return nil, "", fmt.Errorf("export excel: %w", err)
	}
	return buf, fmt.Sprintf("devis_%s.xlsx", c.Structure.Devis.Numero), nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func totauxToResponse(c *chiffrage, version int) *dto.TotauxResponse {
	r := c.Result
	resp := &dto.TotauxResponse{
		DevisID:     r.DevisID,
		Version:     version,
		Format:      string(c.Report.Mode),
		Ambigu:      c.Report.Ambiguous,
		SousTotalHT: r.SousTotalHT.Round(2),
		Ajustements: ajustementsToResponse(r.Ajustements),
		TotalHT:     r.TotalHT.Round(2),
		TauxTVA:     r.TauxTVA,
		TVA:         r.TVA.Round(2),
		TTC:         r.TTC.Round(2),
		Parties:     make([]dto.PartieResponse, 0, len(r.Parties)),
	}
	for _, p := range r.Parties {
		pr := dto.PartieResponse{
			ID:          p.ID,
			Numero:      p.Numero,
			Titre:       p.Titre,
			Domaine:     p.Domaine,
			SousTotal:   p.SousTotal.Round(2),
			Ajustements: ajustementsToResponse(p.Ajustements),
			Total:       p.Total.Round(2),
		}
		for _, sp := range p.SousParties {
			spr := dto.SousPartieResponse{
				ID:          sp.ID,
				Numero:      sp.Numero,
				Description: sp.Description,
				SousTotal:   sp.SousTotal.Round(2),
				Ajustements: ajustementsToResponse(sp.Ajustements),
				Total:       sp.Total.Round(2),
			}
			for _, l := range sp.Lignes {
				spr.Lignes = append(spr.Lignes, dto.LigneResponse{
					ID:           l.ID,
					Numero:       l.Numero,
					Description:  l.Description,
					Unite:        l.Unite,
					Quantite:     l.Quantite,
					PrixUnitaire: l.PrixUnitaire,
					Total:        l.Total.Round(2),
				})
			}
			pr.SousParties = append(pr.SousParties, spr)
		}
		resp.Parties = append(resp.Parties, pr)
	}
	return resp
}

func ajustementsToResponse(list []pricing.Ajustement) []dto.AjustementResponse {
	out := make([]dto.AjustementResponse, 0, len(list))
	for _, a := range list {
		out = append(out, dto.AjustementResponse{
			LigneSpecialeID: a.LigneSpecialeID,
			Description:     a.Description,
			Type:            string(a.Type),
			ValueType:       string(a.ValueType),
			Value:           a.Value,
			Base:            a.Base.Round(2),
			Montant:         a.Montant.Round(2),
			Apres:           a.Apres.Round(2),
			Styles:          a.Style,
		})
	}
	return out
}

func ligneSpecialeToResponse(l *model.LigneSpeciale) *dto.LigneSpecialeResponse {
	return &dto.LigneSpecialeResponse{
		ID:          l.ID.String(),
		DevisID:     l.DevisID.String(),
		Description: l.Description,
		Scope:       l.Scope,
		Type:        l.Type,
		ValueType:   l.ValueType,
		Value:       l.Value,
		IndexGlobal: l.IndexGlobal,
		Styles:      l.Styles,
	}
}
