package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidCountry    = errors.New("invalid country")
	ErrInvalidOccupation = errors.New("invalid occupation")
	ErrFieldTooLong      = errors.New("field too long")
)

const (
	maxExperienceLen = 32
	maxTextLen       = 128
)

// Countries and Occupations are the picker choices. An empty value means the
// clinician has not chosen one.
var (
	Countries   = []string{"Japan", "USA", "UK"}
	Occupations = []string{
		"Ophthalmologist",
		"Non-ophthalmologist (medical doctor)",
		"Nurse",
		"Others",
	}
)

// Profile describes the clinician using the app.
type Profile struct {
	Name        string `json:"name"`
	Country     string `json:"country"`
	Affiliation string `json:"affiliation"`
	Occupation  string `json:"occupation"`
	Experience  string `json:"experience"`
	AvatarURI   string `json:"avatar_uri,omitempty"`
}

func Default() *Profile {
	return &Profile{
		Country:    "Japan",
		Occupation: "Ophthalmologist",
		Experience: "0 ~ 5",
	}
}

func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Affiliation = strings.TrimSpace(p.Affiliation)
	p.Experience = strings.TrimSpace(p.Experience)
	p.AvatarURI = strings.TrimSpace(p.AvatarURI)
}

func (p *Profile) Validate() error {
	if p.Country != "" && !contains(Countries, p.Country) {
		return fmt.Errorf("%w: %q", ErrInvalidCountry, p.Country)
	}
	if p.Occupation != "" && !contains(Occupations, p.Occupation) {
		return fmt.Errorf("%w: %q", ErrInvalidOccupation, p.Occupation)
	}
	if utf8.RuneCountInString(p.Experience) > maxExperienceLen {
		return fmt.Errorf("%w: experience is limited to %d characters", ErrFieldTooLong, maxExperienceLen)
	}
	for name, v := range map[string]string{"name": p.Name, "affiliation": p.Affiliation} {
		if utf8.RuneCountInString(v) > maxTextLen {
			return fmt.Errorf("%w: %s is limited to %d characters", ErrFieldTooLong, name, maxTextLen)
		}
	}
	return nil
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCountry) || errors.Is(err, ErrInvalidOccupation) || errors.Is(err, ErrFieldTooLong)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
