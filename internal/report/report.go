// Package report renders detection results into shareable PDF summaries.
package report

import (
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"

	"github.com/sejmhumor/sejmhumor/internal/pipeline"
)

// WritePDF renders a fragment summary to outPath. Fragments are listed by
// descending confidence with their AI verdicts when present. The cp1250
// translator keeps Polish diacritics intact in the core fonts.
func WritePDF(title string, fragments []pipeline.EvaluatedFragment, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1250")
	pdf.SetFont("Helvetica", "", 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Fragmenty: %d", len(fragments))), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	ordered := make([]pipeline.EvaluatedFragment, len(fragments))
	copy(ordered, fragments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Confidence > ordered[j].Confidence })

	for i, f := range ordered {
		speaker := f.Speaker
		if f.Club != "" {
			speaker += " (" + f.Club + ")"
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, speaker)), "", "L", false)

		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("pewność %.2f, kategoria: %s", f.Confidence, f.Category)), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(f.Text), "", "L", false)

		if ev := f.Evaluation; ev != nil && ev.Provider != "" && ev.Provider != "skipped" {
			verdict := "nieśmieszne"
			if ev.IsFunny {
				verdict = "śmieszne"
			}
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("AI (%s): %s, %.2f — %s", ev.Provider, verdict, ev.Confidence, ev.Reason)), "", "L", false)
		}
		pdf.Ln(4)
	}

	return pdf.OutputFileAndClose(outPath)
}
