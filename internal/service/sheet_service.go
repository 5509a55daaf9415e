package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type sheetExamGetter interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type sheetRenderer interface {
	Render(exam *models.Exam) ([]byte, error)
}

type sheetStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type sheetSigner interface {
	Generate(examID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (examID, relPath string, expiresAt time.Time, err error)
}

// SheetLink points a client at a freshly rendered printable sheet.
type SheetLink struct {
	ExamID    string    `json:"exam_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SheetService renders exams into printable PDF sheets and hands out signed
// download links. Files are re-rendered on demand; the link, not the file, is
// the unit of authorization.
type SheetService struct {
	exams    sheetExamGetter
	renderer sheetRenderer
	store    sheetStore
	signer   sheetSigner
	logger   *zap.Logger
}

// NewSheetService constructs a SheetService instance.
func NewSheetService(exams sheetExamGetter, renderer sheetRenderer, store sheetStore, signer sheetSigner, logger *zap.Logger) *SheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetService{exams: exams, renderer: renderer, store: store, signer: signer, logger: logger}
}

// Render produces the PDF for an exam within the viewer's scope and returns a
// signed download link.
func (s *SheetService) Render(ctx context.Context, viewer *models.JWTClaims, examID string) (*SheetLink, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	if !CanViewExam(viewer, exam) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
	}

	data, err := s.renderer.Render(exam)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render sheet")
	}

	relPath := fmt.Sprintf("%s/sheet-%d.pdf", exam.ID, exam.UpdatedAt.Unix())
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store sheet")
	}

	token, expiresAt, err := s.signer.Generate(exam.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign sheet link")
	}

	s.logger.Info("sheet rendered",
		zap.String("exam_id", exam.ID),
		zap.Int("bytes", len(data)),
	)

	return &SheetLink{ExamID: exam.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Open validates a signed token and returns the stored file for streaming.
// The token carries its own authorization; no session is required.
func (s *SheetService) Open(token string) (*os.File, string, error) {
	examID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired sheet link")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "sheet no longer available")
	}

	return file, fmt.Sprintf("%s.pdf", examID), nil
}

// Cleanup removes stored sheets older than the retention window. Sheets are
// re-rendered on demand, so anything past its signed link's lifetime only
// takes up disk.
func (s *SheetService) Cleanup(retention time.Duration) {
	deleted, err := s.store.CleanupOlderThan(retention)
	if err != nil {
		s.logger.Warn("sheet cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired sheets removed", zap.Int("count", len(deleted)))
	}
}
