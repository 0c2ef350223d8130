package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/ocr"
)

// ErrNotFound is returned when a capture id does not exist or is not visible.
var ErrNotFound = errors.New("capture not found")

// Store persists captures with gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates or updates the captures table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.Capture{})
}

// Record converts an outcome into a row without saving it.
func Record(out *Outcome) (*models.Capture, error) {
	var lines []ocr.RecognizedLine
	backends := make([]string, 0, len(out.Transcript.Results))
	for _, r := range out.Transcript.Results {
		lines = append(lines, r.Lines...)
		backends = append(backends, r.Backend)
	}
	if lines == nil {
		lines = []ocr.RecognizedLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	c := &models.Capture{
		Source:      out.Source,
		Profile:     out.Profile,
		Backends:    strings.Join(backends, ","),
		Text:        out.Transcript.Text,
		Translation: out.Translation,
		Lines:       string(data),
		LineCount:   len(lines),
		Skipped:     out.Transcript.Skipped(),
	}
	if out.Preprocess != nil {
		c.DeskewAngle = out.Preprocess.Deskew.Angle
		c.DeskewCapped = out.Preprocess.Deskew.Capped
	}
	return c, nil
}

// Save stores a successful outcome.
func (s *Store) Save(ctx context.Context, out *Outcome, userID *uint) (*models.Capture, error) {
	c, err := Record(out)
	if err != nil {
		return nil, err
	}
	c.UserID = userID
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// SaveFailure stores a row for an image that could not be recognized.
func (s *Store) SaveFailure(ctx context.Context, source, profile string, cause error, userID *uint) (*models.Capture, error) {
	reason := cause.Error()
	if len(reason) > 255 {
		reason = reason[:255]
	}
	c := &models.Capture{
		UserID:       userID,
		Source:       source,
		Profile:      profile,
		Lines:        "[]",
		Failed:       true,
		FailedReason: reason,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the newest captures, limited to userID when it is non-nil.
func (s *Store) List(ctx context.Context, userID *uint, limit int) ([]models.Capture, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q := s.db.WithContext(ctx).Model(&models.Capture{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var items []models.Capture
	if err := q.Order("created_at desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Get loads one capture, hidden unless it belongs to userID when userID is non-nil.
func (s *Store) Get(ctx context.Context, id string, userID *uint) (*models.Capture, error) {
	var c models.Capture
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if userID != nil && (c.UserID == nil || *c.UserID != *userID) {
		return nil, ErrNotFound
	}
	return &c, nil
}

// Summary aggregates captures in a time window.
type Summary struct {
	Total      int64   `json:"total"`
	Failed     int64   `json:"failed"`
	Capped     int64   `json:"capped"`
	Lines      int64   `json:"lines"`
	Skipped    int64   `json:"skipped"`
	Translated int64   `json:"translated"`
	MeanDeskew float64 `json:"mean_deskew"`
}

// Summarize reports on captures created in [start, end), limited to userID
// when it is non-nil.
func (s *Store) Summarize(ctx context.Context, userID *uint, start, end time.Time) (Summary, error) {
	q := s.db.WithContext(ctx).Model(&models.Capture{}).
		Where("created_at >= ? AND created_at < ?", start, end)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var sum Summary
	err := q.Select(`COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failed,
		COALESCE(SUM(CASE WHEN deskew_capped THEN 1 ELSE 0 END), 0) AS capped,
		COALESCE(SUM(line_count), 0) AS lines,
		COALESCE(SUM(skipped), 0) AS skipped,
		COALESCE(SUM(CASE WHEN translation <> '' THEN 1 ELSE 0 END), 0) AS translated,
		COALESCE(AVG(ABS(deskew_angle)), 0) AS mean_deskew`).
		Scan(&sum).Error
	return sum, err
}
