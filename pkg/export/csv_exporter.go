package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	ptime "github.com/yaa110/go-persian-calendar"

	"github.com/aftab-edu/exam-studio-api/internal/models"
)

var archiveHeaders = []string{"title", "topic", "grade_level", "author", "school", "questions", "total_points", "created_at"}

// CSVExporter renders the exam archive into CSV bytes for offline review.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// RenderArchive produces one row per exam with Jalali creation dates.
func (e *CSVExporter) RenderArchive(exams []models.Exam) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(archiveHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, exam := range exams {
		record := []string{
			exam.Title,
			exam.Topic,
			exam.GradeLevel,
			exam.AuthorName,
			exam.SchoolName,
			strconv.Itoa(len(exam.Questions)),
			formatPoints(exam.TotalPoints()),
			ptime.New(exam.CreatedAt).Format("yyyy/MM/dd"),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
