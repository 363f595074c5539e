package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eyedx/eyedx/internal/domain/intake"
)

// RecordObserver is told about successful writes to the record store.
type RecordObserver interface {
	RecordSaved()
	RecordDeleted(by string)
}

// DiagnosisResult is a classification ready for display, not yet saved.
type DiagnosisResult struct {
	RawText        string               `json:"raw_text"`
	Classification ClassificationResult `json:"classification"`
	Ranking        Ranking              `json:"ranking"`
	Fallback       bool                 `json:"fallback"`
	Warning        string               `json:"warning,omitempty"`
}

type Service struct {
	records    RecordRepository
	classifier Classifier
	observer   RecordObserver
	now        func() time.Time
}

func NewService(records RecordRepository, classifier Classifier) *Service {
	return &Service{
		records:    records,
		classifier: classifier,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// SetObserver attaches an optional observer for store writes.
func (s *Service) SetObserver(o RecordObserver) {
	s.observer = o
}

// Diagnose validates the intake and classifies it. Classifier trouble never
// fails the call; it shows up as Fallback with a Warning.
func (s *Service) Diagnose(ctx context.Context, p intake.PatientIntake) (*DiagnosisResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := s.classifier.Classify(ctx, p)
	res := &DiagnosisResult{
		RawText:        out.RawText,
		Classification: out.Result,
		Ranking:        Rank(out.Result),
		Fallback:       out.Fallback,
	}
	if out.Warning != nil {
		res.Warning = out.Warning.Error()
	}
	return res, nil
}

// CreateFromDiagnosis builds an unsaved Pending record. An empty imageURI
// means the intake had no image.
func (s *Service) CreateFromDiagnosis(patient intake.PatientIntake, rawText string, parsed ClassificationResult, imageURI string) *Record {
	rec := &Record{
		Patient:             patient,
		RawText:             rawText,
		Classification:      parsed,
		DefinitiveDiagnosis: DiagnosisPending,
		CreatedAt:           s.now(),
	}
	if imageURI != "" {
		rec.ImageURI = &imageURI
	}
	return rec
}

// CreateRecord re-reads rawText, builds the record and saves it.
func (s *Service) CreateRecord(ctx context.Context, patient intake.PatientIntake, rawText, imageURI string) (*Record, error) {
	if err := patient.Validate(); err != nil {
		return nil, err
	}
	parsed, err := ParseClassification(rawText)
	if err != nil {
		return nil, err
	}
	if imageURI == "" {
		imageURI, _ = patient.Image()
	}
	rec := s.CreateFromDiagnosis(patient, rawText, parsed, imageURI)
	if err := s.Persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetDefinitiveDiagnosis changes r in memory only. Every non-Pending pick
// stamps UpdatedAt; going back to Pending clears it.
func (s *Service) SetDefinitiveDiagnosis(r *Record, value string) error {
	if err := ValidateDefinitiveDiagnosis(value); err != nil {
		return err
	}
	r.DefinitiveDiagnosis = value
	if value == DiagnosisPending {
		r.UpdatedAt = nil
		return nil
	}
	now := s.now()
	r.UpdatedAt = &now
	return nil
}

func (s *Service) Persist(ctx context.Context, r *Record) error {
	if err := s.records.Save(ctx, r); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.RecordSaved()
	}
	return nil
}

// Remove deletes r by id, or by its raw text when it was never given one.
func (s *Service) Remove(ctx context.Context, r *Record) (bool, error) {
	if r.ID == "" {
		return s.RemoveByRawText(ctx, r.RawText)
	}
	err := s.records.Delete(ctx, r.ID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.deleted("id")
	return true, nil
}

func (s *Service) RemoveByRawText(ctx context.Context, rawText string) (bool, error) {
	ok, err := s.records.DeleteByRawText(ctx, rawText)
	if err != nil {
		return false, err
	}
	if ok {
		s.deleted("raw_text")
	}
	return ok, nil
}

func (s *Service) deleted(by string) {
	if s.observer != nil {
		s.observer.RecordDeleted(by)
	}
}

// ListRecords returns every record, newest first.
func (s *Service) ListRecords(ctx context.Context) ([]*Record, error) {
	items, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (s *Service) GetRecord(ctx context.Context, id string) (*Record, error) {
	return s.records.Get(ctx, id)
}

func (s *Service) UpdateDefinitiveDiagnosis(ctx context.Context, id, value string) (*Record, error) {
	if err := ValidateDefinitiveDiagnosis(value); err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.SetDefinitiveDiagnosis(rec, value); err != nil {
		return nil, err
	}
	if err := s.Persist(ctx, rec); err != nil {
		return nil, fmt.Errorf("save record %s: %w", id, err)
	}
	return rec, nil
}
