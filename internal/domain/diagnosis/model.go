package diagnosis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eyedx/eyedx/internal/domain/intake"
)

// Classifier label vocabulary.
const (
	LabelAcanthamoeba = "Acanthamoeba"
	LabelBacterial    = "Bacterial"
	LabelOthers       = "Others"
	LabelFungal       = "Fungal"
	LabelViral        = "Viral"
)

// DiagnosisPending is the definitive diagnosis of a record nobody has
// confirmed yet.
const DiagnosisPending = "Pending"

var validDiagnoses = map[string]bool{
	DiagnosisPending:  true,
	LabelAcanthamoeba: true,
	LabelBacterial:    true,
	LabelFungal:       true,
	LabelViral:        true,
	LabelOthers:       true,
}

// DefinitiveDiagnoses lists the values a clinician can pick, in picker order.
func DefinitiveDiagnoses() []string {
	return []string{DiagnosisPending, LabelAcanthamoeba, LabelBacterial, LabelFungal, LabelViral, LabelOthers}
}

// ValidateDefinitiveDiagnosis returns ErrInvalidDiagnosis for any value not
// offered by DefinitiveDiagnoses.
func ValidateDefinitiveDiagnosis(v string) error {
	if !validDiagnoses[v] {
		return fmt.Errorf("%w: %q", ErrInvalidDiagnosis, v)
	}
	return nil
}

// ClassificationResult is the classifier payload. Probabilities are index
// aligned with Labels and are kept exactly as received.
type ClassificationResult struct {
	Labels         []string  `json:"labels"`
	Probabilities  []float64 `json:"probabilities"`
	PredictedLabel string    `json:"predicted_label"`
}

// Probability returns the probability reported for label.
func (c ClassificationResult) Probability(label string) (float64, bool) {
	for i, l := range c.Labels {
		if l == label && i < len(c.Probabilities) {
			return c.Probabilities[i], true
		}
	}
	return 0, false
}

func (c ClassificationResult) clone() ClassificationResult {
	return ClassificationResult{
		Labels:         append([]string(nil), c.Labels...),
		Probabilities:  append([]float64(nil), c.Probabilities...),
		PredictedLabel: c.PredictedLabel,
	}
}

// Record is a saved diagnosis. The JSON names match the documents the mobile
// client has always written, so old files keep loading.
type Record struct {
	ID                  string               `json:"id"`
	Patient             intake.PatientIntake `json:"data"`
	RawText             string               `json:"resultText"`
	Classification      ClassificationResult `json:"classification"`
	DefinitiveDiagnosis string               `json:"definitiveDiagnosis"`
	CreatedAt           time.Time            `json:"diagnosisDate"`
	UpdatedAt           *time.Time           `json:"updateDate"`
	ImageURI            *string              `json:"imageUri"`
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

func (r *Record) Status() string {
	if r.DefinitiveDiagnosis == "" || r.DefinitiveDiagnosis == DiagnosisPending {
		return StatusPending
	}
	return StatusConfirmed
}

// normalize fills in what documents written before a field existed lack.
func (r *Record) normalize() {
	if r.DefinitiveDiagnosis == "" {
		r.DefinitiveDiagnosis = DiagnosisPending
	}
	if len(r.Classification.Labels) == 0 && r.RawText != "" {
		if parsed, err := ParseClassification(r.RawText); err == nil {
			r.Classification = parsed
		}
	}
}

// Older documents carry locale date strings rather than RFC 3339 timestamps.
var legacyDateLayouts = []string{time.RFC3339Nano, "1/2/2006", "2006/1/2", "2006-01-02"}

func (r *Record) UnmarshalJSON(b []byte) error {
	type alias Record
	aux := struct {
		*alias
		CreatedAt json.RawMessage `json:"diagnosisDate"`
		UpdatedAt json.RawMessage `json:"updateDate"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	created, err := decodeDate(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("diagnosisDate: %w", err)
	}
	updated, err := decodeDate(aux.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updateDate: %w", err)
	}
	r.CreatedAt = time.Time{}
	if created != nil {
		r.CreatedAt = *created
	}
	r.UpdatedAt = updated
	return nil
}

func decodeDate(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}
