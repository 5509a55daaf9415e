// Package export renders exam documents into printable and tabular formats.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	ptime "github.com/yaa110/go-persian-calendar"

	"github.com/aftab-edu/exam-studio-api/internal/models"
)

const sheetFontFamily = "SheetFont"

// SheetRenderer produces printable A4 exam sheets. Persian text requires a
// UTF-8 font file; without one the renderer falls back to the core fonts and
// only latin content prints correctly.
type SheetRenderer struct {
	fontPath string
}

// NewSheetRenderer constructs a sheet renderer. fontPath points at a TTF file
// with Persian glyph coverage and may be empty.
func NewSheetRenderer(fontPath string) *SheetRenderer {
	return &SheetRenderer{fontPath: fontPath}
}

// Render lays out the exam header, questions and answer areas and returns the
// PDF bytes. The exam date prints in the Jalali calendar.
func (r *SheetRenderer) Render(exam *models.Exam) ([]byte, error) {
	if exam == nil {
		return nil, fmt.Errorf("render sheet: nil exam")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)

	family := "Arial"
	if r.fontPath != "" {
		pdf.AddUTF8Font(sheetFontFamily, "", r.fontPath)
		pdf.AddUTF8Font(sheetFontFamily, "B", r.fontPath)
		family = sheetFontFamily
		pdf.RTL()
	}

	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 10, exam.Title, "", 1, "C", false, 0, "")

	jalaliDate := ptime.New(exam.CreatedAt).Format("yyyy/MM/dd")
	pdf.SetFont(family, "", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("%s | %s | %s", exam.SchoolName, exam.GradeLevel, jalaliDate), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("طراح: %s | بارم کل: %s", exam.AuthorName, formatPoints(exam.TotalPoints())), "", 1, "C", false, 0, "")

	pdf.SetLineWidth(0.4)
	pdf.Line(15, pdf.GetY()+2, 195, pdf.GetY()+2)
	pdf.Ln(6)

	for i, question := range exam.Questions {
		r.renderQuestion(pdf, family, i+1, question)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render sheet pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *SheetRenderer) renderQuestion(pdf *gofpdf.Fpdf, family string, number int, question models.Question) {
	if pdf.GetY() > 250 {
		pdf.AddPage()
	}

	pdf.SetFont(family, "B", 11)
	header := fmt.Sprintf("%d. (%s نمره)", number, formatPoints(question.Points))
	pdf.CellFormat(0, 7, header, "", 1, "", false, 0, "")

	pdf.SetFont(family, "", 11)
	pdf.MultiCell(0, 7, questionBody(question), "", "", false)
	pdf.Ln(2)

	switch question.Type {
	case models.QuestionMultipleChoice:
		r.renderChoices(pdf, family, question.Options)
	case models.QuestionFillInBlank:
		pdf.SetFont(family, "", 11)
		pdf.CellFormat(0, 8, strings.Repeat(".", 80), "", 1, "", false, 0, "")
	default:
		// descriptive answers get ruled writing space
		for i := 0; i < 4; i++ {
			y := pdf.GetY() + 8
			pdf.Line(15, y, 195, y)
			pdf.SetY(y)
		}
	}
	pdf.Ln(6)
}

func (r *SheetRenderer) renderChoices(pdf *gofpdf.Fpdf, family string, options []string) {
	pdf.SetFont(family, "", 11)
	if len(options) == 0 {
		// generated sheets may omit options; leave numbered slots to fill in
		for i := 1; i <= 4; i++ {
			pdf.CellFormat(0, 8, fmt.Sprintf("%d) %s", i, strings.Repeat(".", 40)), "", 1, "", false, 0, "")
		}
		return
	}
	for i, option := range options {
		pdf.CellFormat(0, 8, fmt.Sprintf("%d) %s", i+1, option), "", 1, "", false, 0, "")
	}
}

func questionBody(question models.Question) string {
	if len(question.Segments) == 0 {
		return question.QuestionText
	}
	parts := make([]string, 0, len(question.Segments))
	for _, seg := range question.Segments {
		parts = append(parts, seg.Content)
	}
	return strings.Join(parts, " ")
}

func formatPoints(points float64) string {
	if points == float64(int64(points)) {
		return fmt.Sprintf("%d", int64(points))
	}
	return fmt.Sprintf("%.2f", points)
}
