package infra

// pdf.go: situation (progress invoice) PDF generation using go-pdf/fpdf.
// A4 portrait document with:
//   - Company and chantier header
//   - Situation number and period
//   - Line table (numero, description, base, % précédent, % actuel, mois)
//   - Special lines and avenants tables when present
//   - Deduction block (retenue de garantie, prorata, CIE, lignes supplémentaires)
//   - TVA and net à payer
//
// The output file is saved to storagePath/situation_{chantier}_{annee}_{mois}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"devisbtp/internal/billing"
	"devisbtp/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// SituationFileName is the file name GenerateSituationPDF writes.
func SituationFileName(s *model.Situation) string {
	return fmt.Sprintf("situation_%s_%d_%02d.pdf", s.ChantierID.String()[:8], s.Annee, s.Mois)
}

// GenerateSituationPDF renders a validated situation.
// storagePath is the directory where the PDF will be written (created if needed).
// Returns the absolute path to the generated file.
func GenerateSituationPDF(s *model.Situation, chantier *model.Chantier, entreprise, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, SituationFileName(s))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()
	// Core fonts are cp1252; translate accented UTF-8 text.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 24

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, tr(entreprise), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, tr("Chantier : "+chantier.Nom), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, tr("Client : "+chantier.Client), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	titre := billing.Libelle(s.Numero)
	if s.Correction {
		titre += " (correction)"
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, tr(titre), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, tr("Période : "+billing.Periode{Mois: s.Mois, Annee: s.Annee}.String()), "", 1, "C", false, 0, "")
	if s.Correction && s.MotifCorrection != nil {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(contentW, 4, tr("Motif : "+*s.MotifCorrection), "", "C", false)
	}
	pdf.Ln(3)

	// ── Lines ────────────────────────────────────────────────────────────────
	cols := []float64{contentW * 0.10, contentW * 0.38, contentW * 0.14, contentW * 0.10, contentW * 0.10, contentW * 0.18}
	table := func(title string, rows []model.Avancement) {
		if len(rows) == 0 {
			return
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(contentW, 6, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 8)
		for i, h := range []string{"N°", "Désignation", "Montant HT", "% préc.", "% actuel", "Mois HT"} {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(cols[i], 5, tr(h), "B", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		for _, r := range rows {
			desc := r.Description
			if len([]rune(desc)) > 48 {
				desc = string([]rune(desc)[:47]) + "..."
			}
			pdf.CellFormat(cols[0], 5, r.Numero, "", 0, "L", false, 0, "")
			pdf.CellFormat(cols[1], 5, tr(desc), "", 0, "L", false, 0, "")
			pdf.CellFormat(cols[2], 5, euros(r.Base), "", 0, "R", false, 0, "")
			pdf.CellFormat(cols[3], 5, r.PourcentagePrecedent.StringFixed(2), "", 0, "R", false, 0, "")
			pdf.CellFormat(cols[4], 5, r.PourcentageActuel.StringFixed(2), "", 0, "R", false, 0, "")
			pdf.CellFormat(cols[5], 5, euros(r.MontantMois), "", 1, "R", false, 0, "")
		}
		pdf.Ln(2)
	}
	table("Travaux", avancements(s.Lignes, func(l model.SituationLigne) model.Avancement { return l.Avancement }))
	table("Lignes spéciales", avancements(s.LignesSpeciales, func(l model.SituationLigneSpeciale) model.Avancement { return l.Avancement }))
	table("Avenants", avancements(s.LignesAvenant, func(l model.SituationLigneAvenant) model.Avancement { return l.Avancement }))

	pdf.Line(12, pdf.GetY(), pageW-12, pdf.GetY())
	pdf.Ln(2)

	// ── Totals ───────────────────────────────────────────────────────────────
	labelW := contentW * 0.75
	valueW := contentW * 0.25
	row := func(label string, v decimal.Decimal, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(labelW, 5, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 5, euros(v), "", 1, "R", false, 0, "")
	}
	row("Montant total du marché HT", s.MontantTotalDevisHT, false)
	if !s.MontantTotalAvenantsHT.IsZero() {
		row("Dont avenants HT", s.MontantTotalAvenantsHT, false)
	}
	row("Cumul précédent HT", s.CumulPrecedent, false)
	row("Cumul à ce jour HT ("+s.PourcentageAvancement.StringFixed(2)+" %)", s.MontantTotalCumulHT, false)
	row("Montant HT du mois", s.MontantHTMois, true)
	if !s.RetenueGarantie.IsZero() {
		row("Retenue de garantie ("+s.TauxRetenueGarantie.StringFixed(2)+" %)", s.RetenueGarantie.Neg(), false)
	}
	if !s.MontantProrata.IsZero() {
		row("Compte prorata ("+s.TauxProrata.StringFixed(2)+" %)", s.MontantProrata.Neg(), false)
	}
	if !s.RetenueCIE.IsZero() {
		cie := s.RetenueCIE.Neg()
		if s.DirectionCIE == string(billing.CIEAjout) {
			cie = s.RetenueCIE
		}
		row("CIE", cie, false)
	}
	for _, sup := range s.Supplementaires {
		row(sup.Description, sup.Montant, false)
	}
	row("Montant après retenues HT", s.MontantApresRetenues, true)
	row("TVA ("+s.TauxTVA.StringFixed(2)+" %)", s.TVA, false)

	pdf.Ln(1)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(labelW, 7, tr("NET À PAYER TTC"), "T", 0, "L", false, 0, "")
	pdf.CellFormat(valueW, 7, euros(s.NetAPayer), "T", 1, "R", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

func avancements[T any](rows []T, get func(T) model.Avancement) []model.Avancement {
	out := make([]model.Avancement, len(rows))
	for i, r := range rows {
		out[i] = get(r)
	}
	return out
}

func euros(v decimal.Decimal) string {
	return v.StringFixed(2) + " EUR"
}
