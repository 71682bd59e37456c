package infra

import (
	"bytes"
	"fmt"

	"devisbtp/internal/pricing"
	"devisbtp/internal/tree"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const devisSheet = "Devis"

// BuildDevisWorkbook writes the priced tree of a devis as an .xlsx
// breakdown: one row per partie, sous-partie, ligne and special line, then
// the HT / TVA / TTC totals.
func BuildDevisWorkbook(numero string, res *pricing.Result) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", devisSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("#,##0.00")})
	if err != nil {
		return nil, err
	}
	italic, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true}})
	if err != nil {
		return nil, err
	}

	w := &sheetWriter{f: f, row: 1}
	w.set(bold, "Devis "+numero)
	w.row++
	w.set(bold, "N°", "Désignation", "Unité", "Quantité", "PU HT", "Total HT")

	ajustements := func(list []pricing.Ajustement) {
		for _, a := range list {
			label := a.Description
			if a.ValueType == tree.ValuePercentage {
				label = fmt.Sprintf("%s (%s %%)", a.Description, a.Value.String())
			}
			w.set(italic, "", label, "", "", "", money64(a.Signed()))
		}
	}

	for _, p := range res.Parties {
		w.set(bold, p.Numero, p.Titre)
		for _, sp := range p.SousParties {
			w.set(bold, sp.Numero, sp.Description)
			for _, l := range sp.Lignes {
				w.set(0, l.Numero, l.Description, l.Unite, money64(l.Quantite), money64(l.PrixUnitaire), money64(l.Total))
			}
			ajustements(sp.Ajustements)
			w.set(bold, "", "Total "+sp.Numero, "", "", "", money64(sp.Total))
		}
		ajustements(p.Ajustements)
		w.set(bold, "", "Total "+p.Numero+" "+p.Titre, "", "", "", money64(p.Total))
		w.row++
	}
	ajustements(res.Ajustements)

	w.set(bold, "", "Total HT", "", "", "", money64(res.TotalHT.Round(2)))
	w.set(0, "", fmt.Sprintf("TVA %s %%", res.TauxTVA.String()), "", "", "", money64(res.TVA.Round(2)))
	w.set(bold, "", "Total TTC", "", "", "", money64(res.TTC.Round(2)))

	if err := f.SetColWidth(devisSheet, "B", "B", 60); err != nil {
		return nil, err
	}
	if err := f.SetColStyle(devisSheet, "E:F", money); err != nil {
		return nil, err
	}
	if w.err != nil {
		return nil, w.err
	}
	return f.WriteToBuffer()
}

type sheetWriter struct {
	f   *excelize.File
	row int
	err error
}

// set writes one row starting at column A and moves to the next row.
func (w *sheetWriter) set(style int, values ...interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(devisSheet, cell, &values); err != nil {
		w.err = err
		return
	}
	if style != 0 {
		end, _ := excelize.CoordinatesToCellName(len(values), w.row)
		if err := w.f.SetCellStyle(devisSheet, cell, end, style); err != nil {
			w.err = err
			return
		}
	}
	w.row++
}

func money64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func strPtr(s string) *string { return &s }
