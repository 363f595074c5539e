package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrLastEntry       = errors.New("cannot remove the last remaining entry")
	ErrIndexOutOfRange = errors.New("entry index out of range")
	ErrInvalidAge      = errors.New("age must be a whole number between 0 and 150")
	ErrInvalidSex      = errors.New("sex must be Male or Female")
	ErrEmptyComplaints = errors.New("at least one chief complaint is required")
	ErrEmptyHistory    = errors.New("at least one history of present illness entry is required")
)

const maxAge = 150

type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
)

func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

// PatientIntake is the intake form as an immutable value. Every modifier
// returns a new PatientIntake and leaves the receiver untouched.
//
// Values built with New and the modifiers always hold at least one chief
// complaint and one history entry. Decoded values are checked by Validate.
type PatientIntake struct {
	age        string
	sex        Sex
	ethnicity  string
	complaints []string
	history    []string
	image      *string
}

// New returns the initial form state: one blank complaint and one blank
// history entry.
func New() PatientIntake {
	return PatientIntake{
		sex:        SexMale,
		complaints: []string{""},
		history:    []string{""},
	}
}

func (p PatientIntake) Age() string       { return p.age }
func (p PatientIntake) Sex() Sex          { return p.sex }
func (p PatientIntake) Ethnicity() string { return p.ethnicity }

func (p PatientIntake) ChiefComplaints() []string { return clone(p.complaints) }
func (p PatientIntake) History() []string         { return clone(p.history) }

// Image returns the local image URI, if one is attached.
func (p PatientIntake) Image() (string, bool) {
	if p.image == nil {
		return "", false
	}
	return *p.image, true
}

func (p PatientIntake) WithAge(age string) PatientIntake {
	p.age = strings.TrimSpace(age)
	return p.detach()
}

func (p PatientIntake) WithSex(sex Sex) PatientIntake {
	p.sex = sex
	return p.detach()
}

func (p PatientIntake) WithEthnicity(ethnicity string) PatientIntake {
	p.ethnicity = ethnicity
	return p.detach()
}

// WithImage attaches an image URI. An empty uri clears it.
func (p PatientIntake) WithImage(uri string) PatientIntake {
	p = p.detach()
	if uri == "" {
		p.image = nil
		return p
	}
	p.image = &uri
	return p
}

func (p PatientIntake) AddComplaint(text string) PatientIntake {
	p = p.detach()
	p.complaints = append(p.complaints, text)
	return p
}

func (p PatientIntake) SetComplaint(i int, text string) (PatientIntake, error) {
	list, err := set(p.complaints, i, text)
	if err != nil {
		return p, fmt.Errorf("chief complaint %d: %w", i, err)
	}
	p = p.detach()
	p.complaints = list
	return p, nil
}

func (p PatientIntake) RemoveComplaint(i int) (PatientIntake, error) {
	list, err := remove(p.complaints, i)
	if err != nil {
		return p, fmt.Errorf("chief complaint %d: %w", i, err)
	}
	p = p.detach()
	p.complaints = list
	return p, nil
}

func (p PatientIntake) AddHistory(text string) PatientIntake {
	p = p.detach()
	p.history = append(p.history, text)
	return p
}

func (p PatientIntake) SetHistory(i int, text string) (PatientIntake, error) {
	list, err := set(p.history, i, text)
	if err != nil {
		return p, fmt.Errorf("history entry %d: %w", i, err)
	}
	p = p.detach()
	p.history = list
	return p, nil
}

func (p PatientIntake) RemoveHistory(i int) (PatientIntake, error) {
	list, err := remove(p.history, i)
	if err != nil {
		return p, fmt.Errorf("history entry %d: %w", i, err)
	}
	p = p.detach()
	p.history = list
	return p, nil
}

// Validate reports the first problem that would stop the form from being
// submitted. Blank list entries are allowed while editing and are not rejected.
func (p PatientIntake) Validate() error {
	age, err := strconv.Atoi(p.age)
	if err != nil || age < 0 || age > maxAge {
		return fmt.Errorf("%w: %q", ErrInvalidAge, p.age)
	}
	if !p.sex.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSex, p.sex)
	}
	if len(p.complaints) == 0 {
		return ErrEmptyComplaints
	}
	if len(p.history) == 0 {
		return ErrEmptyHistory
	}
	return nil
}

// IsValidationError reports whether err came from Validate or a list modifier.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrLastEntry, ErrIndexOutOfRange, ErrInvalidAge, ErrInvalidSex, ErrEmptyComplaints, ErrEmptyHistory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// detach gives p its own copies of the slices and image pointer so that a
// later append never writes into an array shared with the original value.
func (p PatientIntake) detach() PatientIntake {
	p.complaints = clone(p.complaints)
	p.history = clone(p.history)
	if p.image != nil {
		img := *p.image
		p.image = &img
	}
	return p
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func set(list []string, i int, text string) ([]string, error) {
	if i < 0 || i >= len(list) {
		return nil, ErrIndexOutOfRange
	}
	out := clone(list)
	out[i] = text
	return out, nil
}

func remove(list []string, i int) ([]string, error) {
	if i < 0 || i >= len(list) {
		return nil, ErrIndexOutOfRange
	}
	if len(list) == 1 {
		return nil, ErrLastEntry
	}
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), nil
}

// wire is the classifier request body and the on-disk shape.
type wire struct {
	Age             string   `json:"age"`
	Sex             Sex      `json:"sex"`
	Ethnicity       string   `json:"ethnicity"`
	ChiefComplaints []string `json:"chiefComplaints"`
	History         []string `json:"history"`
	Image           *string  `json:"image"`
}

func (p PatientIntake) MarshalJSON() ([]byte, error) {
	w := wire{
		Age:             p.age,
		Sex:             p.sex,
		Ethnicity:       p.ethnicity,
		ChiefComplaints: p.complaints,
		History:         p.history,
		Image:           p.image,
	}
	if w.ChiefComplaints == nil {
		w.ChiefComplaints = []string{}
	}
	if w.History == nil {
		w.History = []string{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire shape. A numeric age is accepted as well as
// numeric text, and "historyOfPresentIllness" is read when "history" is absent.
func (p *PatientIntake) UnmarshalJSON(data []byte) error {
	var raw struct {
		wire
		Age                     json.RawMessage `json:"age"`
		HistoryOfPresentIllness []string        `json:"historyOfPresentIllness"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	age, err := decodeAge(raw.Age)
	if err != nil {
		return err
	}
	history := raw.History
	if history == nil {
		history = raw.HistoryOfPresentIllness
	}

	*p = PatientIntake{
		age:        age,
		sex:        raw.Sex,
		ethnicity:  raw.Ethnicity,
		complaints: clone(raw.ChiefComplaints),
		history:    clone(history),
		image:      raw.Image,
	}
	if p.image != nil && *p.image == "" {
		p.image = nil
	}
	return nil
}

func decodeAge(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("age: %w", err)
	}
	return n.String(), nil
}
