package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"devisbtp/internal/billing"
	"devisbtp/internal/dto"
	"devisbtp/internal/model"
	"devisbtp/internal/repository"
	"devisbtp/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPeriodeInvalide   = errors.New("période invalide: mois 1 à 12, année 2000 à 2100")
	ErrPeriodeExistante  = errors.New("une situation existe déjà pour cette période")
	ErrPeriodeAnterieure = errors.New("la période doit suivre celle de la dernière situation du chantier")
	ErrPasDerniere       = errors.New("seule la dernière situation du chantier peut être modifiée")
	ErrChantierSansDevis = errors.New("aucun devis accepté pour ce chantier")
	ErrDevisNonValide    = errors.New("le devis du chantier n'est pas validé")
	ErrPDFIndisponible   = errors.New("PDF non disponible")
)

type SituationService interface {
	Creer(ctx context.Context, req dto.CreerSituationRequest) (*dto.SituationResponse, error)
	MettreAJour(ctx context.Context, id uuid.UUID, req dto.MettreAJourSituationRequest) (*dto.SituationResponse, error)
	Corriger(ctx context.Context, id uuid.UUID, req dto.CorrectionRequest) (*dto.SituationResponse, error)
	Supprimer(ctx context.Context, id uuid.UUID) error
	Valider(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error)
	Facturer(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error)
	Obtenir(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error)
	ObtenirPDFPath(ctx context.Context, id uuid.UUID) (string, error)
	ListerParChantier(ctx context.Context, chantierID uuid.UUID) ([]dto.SituationResumeResponse, error)
}

type situationService struct {
	repo           repository.SituationRepository
	devisRepo      repository.DevisRepository
	chantierRepo   repository.ChantierRepository
	avenantRepo    repository.AvenantRepository
	dispatcher     *worker.Dispatcher
	pdfStoragePath string
	defauts        billing.Retenues
}

func NewSituationService(
	repo repository.SituationRepository,
	devisRepo repository.DevisRepository,
	chantierRepo repository.ChantierRepository,
	avenantRepo repository.AvenantRepository,
	dispatcher *worker.Dispatcher,
	pdfStoragePath string,
	defauts billing.Retenues,
) SituationService {
	return &situationService{
		repo:           repo,
		devisRepo:      devisRepo,
		chantierRepo:   chantierRepo,
		avenantRepo:    avenantRepo,
		dispatcher:     dispatcher,
		pdfStoragePath: pdfStoragePath,
		defauts:        defauts,
	}
}

func periodeOf(s model.Situation) billing.Periode {
	return billing.Periode{Mois: s.Mois, Annee: s.Annee}
}

// ── Creer ─────────────────────────────────────────────────────────────────────
// One transaction, serialised on the devis row:
//   1. check the period is new and after every existing one
//   2. price the devis, load the avenants and the previous situation
//   3. run the billing engine and persist the cent-rounded result

func (s *situationService) Creer(ctx context.Context, req dto.CreerSituationRequest) (*dto.SituationResponse, error) {
	chantierID, err := uuid.Parse(req.ChantierID)
	if err != nil {
		return nil, fmt.Errorf("chantier_id invalide: %w", err)
	}
	periode := billing.Periode{Mois: req.Mois, Annee: req.Annee}
	if !periode.Valid() {
		return nil, ErrPeriodeInvalide
	}
	chantier, err := s.chantierRepo.FindByID(ctx, chantierID)
	if err != nil {
		return nil, notFound(err, "chantier "+chantierID.String())
	}
	if chantier.DevisID == nil {
		return nil, ErrChantierSansDevis
	}

	sit := model.Situation{
		ID:         uuid.New(),
		ChantierID: chantierID,
		DevisID:    *chantier.DevisID,
		Mois:       req.Mois,
		Annee:      req.Annee,
		Statut:     string(billing.Brouillon),
	}
	defaults := s.defauts
	if chantier.TauxRetenueGarantie != nil {
		defaults.TauxRetenueGarantie = *chantier.TauxRetenueGarantie
	}
	if chantier.TauxProrata != nil {
		defaults.TauxProrata = *chantier.TauxProrata
	}
	defaults.RetenueCIE = chantier.RetenueCIE
	defaults.DirectionCIE = billing.DirectionCIE(chantier.DirectionCIE)

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		d, err := s.devisRepo.LockTx(ctx, tx, sit.DevisID)
		if err != nil {
			return notFound(err, "devis "+sit.DevisID.String())
		}
		if d.Statut != model.DevisValide {
			return ErrDevisNonValide
		}
		situations, err := s.repo.ListByChantierTx(ctx, tx, chantierID)
		if err != nil {
			return err
		}
		periodes := make([]billing.Periode, 0, len(situations)+1)
		for _, existing := range situations {
			p := periodeOf(existing)
			if p == periode {
				return ErrPeriodeExistante
			}
			periodes = append(periodes, p)
		}
		if last, ok := billing.Derniere(situations, periodeOf); ok && !periodeOf(last).Before(periode) {
			return ErrPeriodeAnterieure
		}
		sit.Numero = billing.Rang(append(periodes, periode), periode)

		if err := s.compute(ctx, tx, &sit, situations, req.AvancementsRequest, defaults, false, ""); err != nil {
			return err
		}
		return s.repo.CreateTx(ctx, tx, &sit)
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("situation_id", sit.ID.String()).
		Str("chantier_id", chantierID.String()).
		Str("periode", periode.String()).
		Str("montant_ht_mois", sit.MontantHTMois.String()).
		Msg("situation créée")
	return situationToResponse(&sit), nil
}

// ── MettreAJour / Corriger ────────────────────────────────────────────────────

func (s *situationService) MettreAJour(ctx context.Context, id uuid.UUID, req dto.MettreAJourSituationRequest) (*dto.SituationResponse, error) {
	return s.recompute(ctx, id, req.AvancementsRequest, nil)
}

// Corriger recomputes the latest brouillon situation with percentages that
// may go below the previous period. The situation stays flagged as a
// correction afterwards.
func (s *situationService) Corriger(ctx context.Context, id uuid.UUID, req dto.CorrectionRequest) (*dto.SituationResponse, error) {
	motif := strings.TrimSpace(req.Motif)
	if motif == "" {
		return nil, billing.ErrMotifRequis
	}
	return s.recompute(ctx, id, req.AvancementsRequest, &motif)
}

func (s *situationService) recompute(ctx context.Context, id uuid.UUID, req dto.AvancementsRequest, motif *string) (*dto.SituationResponse, error) {
	var sit *model.Situation
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		sit, err = s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "situation "+id.String())
		}
		if err := billing.CheckEditable(billing.Statut(sit.Statut), "modification"); err != nil {
			return err
		}
		if _, err := s.devisRepo.LockTx(ctx, tx, sit.DevisID); err != nil {
			return notFound(err, "devis "+sit.DevisID.String())
		}
		situations, err := s.repo.ListByChantierTx(ctx, tx, sit.ChantierID)
		if err != nil {
			return err
		}
		if last, ok := billing.Derniere(situations, periodeOf); !ok || last.ID != sit.ID {
			return ErrPasDerniere
		}

		defaults := billing.Retenues{
			TauxRetenueGarantie: sit.TauxRetenueGarantie,
			TauxProrata:         sit.TauxProrata,
			RetenueCIE:          sit.RetenueCIE,
			DirectionCIE:        billing.DirectionCIE(sit.DirectionCIE),
		}
		correction, why := sit.Correction, ""
		if sit.MotifCorrection != nil {
			why = *sit.MotifCorrection
		}
		if motif != nil {
			correction, why = true, *motif
		}
		if err := s.compute(ctx, tx, sit, situations, req, defaults, correction, why); err != nil {
			return err
		}
		return s.repo.UpdateTx(ctx, tx, sit)
	})
	if err != nil {
		return nil, err
	}
	return situationToResponse(sit), nil
}

// compute prices the devis, runs the billing engine for sit's period and
// writes the rounded result onto sit.
func (s *situationService) compute(
	ctx context.Context,
	tx *gorm.DB,
	sit *model.Situation,
	situations []model.Situation,
	req dto.AvancementsRequest,
	defaults billing.Retenues,
	correction bool,
	motif string,
) error {
	c, err := chiffrer(ctx, s.devisRepo, tx, sit.DevisID)
	if err != nil {
		return err
	}
	avenants, err := s.avenantRepo.ListByChantierTx(ctx, tx, sit.ChantierID)
	if err != nil {
		return err
	}

	in := billing.Input{
		Devis:      c.Result,
		TauxTVA:    c.Result.TauxTVA,
		Retenues:   retenues(defaults, req.Retenues),
		Correction: correction,
		Motif:      motif,
	}
	if in.Lignes, err = pourcentages(billing.KindLigne, req.Lignes); err != nil {
		return err
	}
	if in.LignesSpeciales, err = pourcentages(billing.KindLigneSpeciale, req.LignesSpeciales); err != nil {
		return err
	}
	if in.LignesAvenant, err = pourcentages(billing.KindLigneAvenant, req.LignesAvenant); err != nil {
		return err
	}
	for _, a := range avenants {
		for _, l := range a.Lignes {
			in.Avenants = append(in.Avenants, billing.LigneAvenant{
				ID:            l.ID.String(),
				AvenantID:     a.ID.String(),
				NumeroAvenant: a.Numero,
				Description:   l.Description,
				Montant:       l.Montant,
			})
		}
	}
	for i, sup := range req.Supplementaires {
		in.Supplementaires = append(in.Supplementaires, billing.LigneSupplementaire{
			ID:          fmt.Sprintf("supplementaire-%d", i+1),
			Description: sup.Description,
			Sens:        billing.SensSupplementaire(sup.Sens),
			Montant:     sup.Montant,
		})
	}
	if prev, ok := billing.Precedente(situations, periodeOf(*sit), periodeOf); ok {
		in.Precedent = precedentOf(&prev)
	}

	res, err := billing.Compute(in)
	if err != nil {
		return err
	}
	applyResult(sit, res.Rounded())
	if correction {
		sit.MotifCorrection = &motif
	}
	return nil
}

// ── Statut ────────────────────────────────────────────────────────────────────

func (s *situationService) Valider(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error) {
	if err := s.transition(ctx, id, billing.Validee); err != nil {
		return nil, err
	}
	// PDF rendering is async; the retry cron re-enqueues it if this push is lost.
	if s.dispatcher != nil {
		payload := worker.SituationPDFPayload{SituationID: id.String(), Envoyer: true}
		if err := s.dispatcher.EnqueueSituationPDF(ctx, payload); err != nil {
			log.Warn().Err(err).Str("situation_id", id.String()).Msg("situation: failed to enqueue PDF job")
		}
	}
	return s.Obtenir(ctx, id)
}

func (s *situationService) Facturer(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error) {
	if err := s.transition(ctx, id, billing.Facturee); err != nil {
		return nil, err
	}
	return s.Obtenir(ctx, id)
}

func (s *situationService) transition(ctx context.Context, id uuid.UUID, to billing.Statut) error {
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sit, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "situation "+id.String())
		}
		if err := billing.Transition(billing.Statut(sit.Statut), to); err != nil {
			return err
		}
		return s.repo.UpdateStatutTx(ctx, tx, id, string(to), time.Now())
	})
}

func (s *situationService) Supprimer(ctx context.Context, id uuid.UUID) error {
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sit, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return notFound(err, "situation "+id.String())
		}
		if err := billing.CheckEditable(billing.Statut(sit.Statut), "suppression"); err != nil {
			return err
		}
		situations, err := s.repo.ListByChantierTx(ctx, tx, sit.ChantierID)
		if err != nil {
			return err
		}
		if last, ok := billing.Derniere(situations, periodeOf); !ok || last.ID != sit.ID {
			return ErrPasDerniere
		}
		return s.repo.DeleteTx(ctx, tx, id)
	})
}

// ── Lecture ───────────────────────────────────────────────────────────────────

func (s *situationService) Obtenir(ctx context.Context, id uuid.UUID) (*dto.SituationResponse, error) {
	sit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "situation "+id.String())
	}
	return situationToResponse(sit), nil
}

// ObtenirPDFPath returns the filesystem path of a generated situation PDF.
func (s *situationService) ObtenirPDFPath(ctx context.Context, id uuid.UUID) (string, error) {
	sit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", notFound(err, "situation "+id.String())
	}
	if sit.PDFPath == nil || *sit.PDFPath == "" {
		return "", fmt.Errorf("%w: la situation est en statut '%s'", ErrPDFIndisponible, sit.Statut)
	}
	return filepath.Join(s.pdfStoragePath, filepath.Base(*sit.PDFPath)), nil
}

func (s *situationService) ListerParChantier(ctx context.Context, chantierID uuid.UUID) ([]dto.SituationResumeResponse, error) {
	situations, err := s.repo.ListByChantier(ctx, chantierID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SituationResumeResponse, 0, len(situations))
	for _, sit := range situations {
		out = append(out, dto.SituationResumeResponse{
			ID:                  sit.ID.String(),
			Mois:                sit.Mois,
			Annee:               sit.Annee,
			Numero:              sit.Numero,
			Libelle:             billing.Libelle(sit.Numero),
			Statut:              sit.Statut,
			Correction:          sit.Correction,
			MontantHTMois:       sit.MontantHTMois,
			MontantTotalCumulHT: sit.MontantTotalCumulHT,
			NetAPayer:           sit.NetAPayer,
		})
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func retenues(defaults billing.Retenues, o dto.RetenuesRequest) billing.Retenues {
	r := defaults
	if o.TauxRetenueGarantie != nil {
		r.TauxRetenueGarantie = *o.TauxRetenueGarantie
	}
	if o.TauxProrata != nil {
		r.TauxProrata = *o.TauxProrata
	}
	if o.RetenueCIE != nil {
		r.RetenueCIE = *o.RetenueCIE
	}
	if o.DirectionCIE != nil {
		r.DirectionCIE = billing.DirectionCIE(*o.DirectionCIE)
	}
	return r
}

func pourcentages(kind billing.LineKind, in []dto.PourcentageRequest) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for _, p := range in {
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s %s présente deux fois", billing.ErrValidation, kind, p.ID)
		}
		out[p.ID] = p.Pourcentage
	}
	return out, nil
}

func precedentOf(prev *model.Situation) billing.Precedent {
	p := billing.Precedent{
		CumulHT:         prev.MontantTotalCumulHT,
		Lignes:          make(map[string]decimal.Decimal, len(prev.Lignes)),
		LignesSpeciales: make(map[string]decimal.Decimal, len(prev.LignesSpeciales)),
		LignesAvenant:   make(map[string]decimal.Decimal, len(prev.LignesAvenant)),
	}
	for _, l := range prev.Lignes {
		p.Lignes[l.LigneID] = l.PourcentageActuel
	}
	for _, l := range prev.LignesSpeciales {
		p.LignesSpeciales[l.LigneID] = l.PourcentageActuel
	}
	for _, l := range prev.LignesAvenant {
		p.LignesAvenant[l.LigneID] = l.PourcentageActuel
	}
	return p
}

func toModelAvancement(a billing.Avancement) model.Avancement {
	return model.Avancement{
		LigneID:              a.ID,
		Numero:               a.Numero,
		Description:          a.Description,
		Base:                 a.Base,
		PourcentagePrecedent: a.PourcentagePrecedent,
		PourcentageActuel:    a.PourcentageActuel,
		MontantCumul:         a.MontantCumul,
		MontantMois:          a.MontantMois,
	}
}

// applyResult copies a rounded engine result onto the situation, replacing
// every child line.
func applyResult(sit *model.Situation, r billing.Result) {
	sit.Correction = r.Correction
	sit.MontantTotalDevisHT = r.MontantTotalDevisHT
	sit.MontantTotalAvenantsHT = r.MontantTotalAvenantsHT
	sit.MontantHTMois = r.MontantHTMois
	sit.CumulPrecedent = r.CumulPrecedent
	sit.MontantTotalCumulHT = r.MontantTotalCumulHT
	sit.PourcentageAvancement = r.PourcentageAvancement
	sit.TauxRetenueGarantie = r.TauxRetenueGarantie
	sit.RetenueGarantie = r.RetenueGarantie
	sit.TauxProrata = r.TauxProrata
	sit.MontantProrata = r.MontantProrata
	sit.RetenueCIE = r.RetenueCIE
	sit.DirectionCIE = string(r.DirectionCIE)
	sit.MontantApresRetenues = r.MontantApresRetenues
	sit.TauxTVA = r.TauxTVA
	sit.TVA = r.TVA
	sit.NetAPayer = r.NetAPayer

	sit.Lignes = make([]model.SituationLigne, 0, len(r.Lignes))
	for _, a := range r.Lignes {
		sit.Lignes = append(sit.Lignes, model.SituationLigne{ID: uuid.New(), SituationID: sit.ID, Avancement: toModelAvancement(a)})
	}
	sit.LignesSpeciales = make([]model.SituationLigneSpeciale, 0, len(r.LignesSpeciales))
	for _, a := range r.LignesSpeciales {
		sit.LignesSpeciales = append(sit.LignesSpeciales, model.SituationLigneSpeciale{ID: uuid.New(), SituationID: sit.ID, Avancement: toModelAvancement(a)})
	}
	sit.LignesAvenant = make([]model.SituationLigneAvenant, 0, len(r.LignesAvenant))
	for _, a := range r.LignesAvenant {
		sit.LignesAvenant = append(sit.LignesAvenant, model.SituationLigneAvenant{ID: uuid.New(), SituationID: sit.ID, Avancement: toModelAvancement(a)})
	}
	sit.Supplementaires = make([]model.SituationLigneSupplementaire, 0, len(r.Supplementaires))
	for i, sup := range r.Supplementaires {
		sit.Supplementaires = append(sit.Supplementaires, model.SituationLigneSupplementaire{
			ID:          uuid.New(),
			SituationID: sit.ID,
			Position:    i + 1,
			Description: sup.Description,
			Sens:        string(sup.Sens),
			Montant:     sup.Montant,
		})
	}
}

func avancementsToResponse(in []model.Avancement) []dto.AvancementResponse {
	out := make([]dto.AvancementResponse, 0, len(in))
	for _, a := range in {
		out = append(out, dto.AvancementResponse{
			ID:                   a.LigneID,
			Numero:               a.Numero,
			Description:          a.Description,
			Base:                 a.Base,
			PourcentagePrecedent: a.PourcentagePrecedent,
			PourcentageActuel:    a.PourcentageActuel,
			MontantCumul:         a.MontantCumul,
			MontantMois:          a.MontantMois,
		})
	}
	return out
}

func situationToResponse(sit *model.Situation) *dto.SituationResponse {
	resp := &dto.SituationResponse{
		ID:                     sit.ID.String(),
		ChantierID:             sit.ChantierID.String(),
		DevisID:                sit.DevisID.String(),
		Mois:                   sit.Mois,
		Annee:                  sit.Annee,
		Numero:                 sit.Numero,
		Libelle:                billing.Libelle(sit.Numero),
		Statut:                 sit.Statut,
		Correction:             sit.Correction,
		MotifCorrection:        sit.MotifCorrection,
		MontantTotalDevisHT:    sit.MontantTotalDevisHT,
		MontantTotalAvenantsHT: sit.MontantTotalAvenantsHT,
		MontantHTMois:          sit.MontantHTMois,
		CumulPrecedent:         sit.CumulPrecedent,
		MontantTotalCumulHT:    sit.MontantTotalCumulHT,
		PourcentageAvancement:  sit.PourcentageAvancement,
		TauxRetenueGarantie:    sit.TauxRetenueGarantie,
		RetenueGarantie:        sit.RetenueGarantie,
		TauxProrata:            sit.TauxProrata,
		MontantProrata:         sit.MontantProrata,
		RetenueCIE:             sit.RetenueCIE,
		DirectionCIE:           sit.DirectionCIE,
		MontantApresRetenues:   sit.MontantApresRetenues,
		TauxTVA:                sit.TauxTVA,
		TVA:                    sit.TVA,
		NetAPayer:              sit.NetAPayer,
		PDFDisponible:          sit.PDFPath != nil && *sit.PDFPath != "",
		ValideeAt:              sit.ValideeAt,
		FactureeAt:             sit.FactureeAt,
		Supplementaires:        make([]dto.SupplementaireResponse, 0, len(sit.Supplementaires)),
	}
	lignes := make([]model.Avancement, 0, len(sit.Lignes))
	for _, l := range sit.Lignes {
		lignes = append(lignes, l.Avancement)
	}
	speciales := make([]model.Avancement, 0, len(sit.LignesSpeciales))
	for _, l := range sit.LignesSpeciales {
		speciales = append(speciales, l.Avancement)
	}
	avenants := make([]model.Avancement, 0, len(sit.LignesAvenant))
	for _, l := range sit.LignesAvenant {
		avenants = append(avenants, l.Avancement)
	}
	resp.Lignes = avancementsToResponse(lignes)
	resp.LignesSpeciales = avancementsToResponse(speciales)
	resp.LignesAvenant = avancementsToResponse(avenants)
	for _, sup := range sit.Supplementaires {
		resp.Supplementaires = append(resp.Supplementaires, dto.SupplementaireResponse{
			Description: sup.Description,
			Sens:        sup.Sens,
			Montant:     sup.Montant,
		})
	}
	return resp
}
