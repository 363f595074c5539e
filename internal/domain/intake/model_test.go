package intake

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func validIntake(t *testing.T) PatientIntake {
	t.Helper()
	p := New().WithAge("42").WithSex(SexFemale).WithEthnicity("Asian")
	p, err := p.SetComplaint(0, "eye pain")
	if err != nil {
		t.Fatalf("SetComplaint: %v", err)
	}
	p, err = p.SetHistory(0, "contact lens wearer")
	if err != nil {
		t.Fatalf("SetHistory: %v", err)
	}
	return p
}

func TestNew_InitialState(t *testing.T) {
	p := New()
	if got := p.ChiefComplaints(); len(got) != 1 || got[0] != "" {
		t.Errorf("expected one blank complaint, got %q", got)
	}
	if got := p.History(); len(got) != 1 || got[0] != "" {
		t.Errorf("expected one blank history entry, got %q", got)
	}
	if _, ok := p.Image(); ok {
		t.Error("expected no image")
	}
}

func TestRemove_LastEntryRejected(t *testing.T) {
	p := New()

	if _, err := p.RemoveComplaint(0); !errors.Is(err, ErrLastEntry) {
		t.Errorf("expected ErrLastEntry removing the only complaint, got %v", err)
	}
	if _, err := p.RemoveHistory(0); !errors.Is(err, ErrLastEntry) {
		t.Errorf("expected ErrLastEntry removing the only history entry, got %v", err)
	}
}

func TestRemove_KeepsAtLeastOne(t *testing.T) {
	p := New().AddComplaint("redness").AddComplaint("blurred vision")

	var err error
	for len(p.ChiefComplaints()) > 1 {
		p, err = p.RemoveComplaint(0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := p.ChiefComplaints(); len(got) != 1 || got[0] != "blurred vision" {
		t.Errorf("expected [blurred vision], got %q", got)
	}
	if _, err := p.RemoveComplaint(0); !errors.Is(err, ErrLastEntry) {
		t.Errorf("expected ErrLastEntry, got %v", err)
	}
}

func TestIndexOutOfRange(t *testing.T) {
	p := New()
	tests := []struct {
		name string
		fn   func() error
	}{
		{"set complaint negative", func() error { _, err := p.SetComplaint(-1, "x"); return err }},
		{"set complaint past end", func() error { _, err := p.SetComplaint(1, "x"); return err }},
		{"remove history past end", func() error { _, err := p.AddHistory("a").RemoveHistory(5); return err }},
		{"set history past end", func() error { _, err := p.SetHistory(3, "x"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("expected ErrIndexOutOfRange, got %v", err)
			}
		})
	}
}

func TestModifiers_DoNotMutateReceiver(t *testing.T) {
	base := New().AddComplaint("redness")
	before := base.ChiefComplaints()

	changed, err := base.SetComplaint(0, "pain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = base.AddComplaint("photophobia")
	_, _ = base.RemoveComplaint(1)
	_ = base.WithImage("file:///tmp/eye.png")

	if !reflect.DeepEqual(base.ChiefComplaints(), before) {
		t.Errorf("receiver mutated: got %q, want %q", base.ChiefComplaints(), before)
	}
	if _, ok := base.Image(); ok {
		t.Error("receiver gained an image")
	}
	if changed.ChiefComplaints()[0] != "pain" {
		t.Errorf("expected new value to carry the change, got %q", changed.ChiefComplaints())
	}
}

func TestAppend_DoesNotShareBackingArray(t *testing.T) {
	base := New().AddHistory("a")
	x := base.AddHistory("x")
	y := base.AddHistory("y")

	if x.History()[2] != "x" || y.History()[2] != "y" {
		t.Errorf("sibling values share storage: x=%q y=%q", x.History(), y.History())
	}
}

func TestAccessors_ReturnCopies(t *testing.T) {
	p := New()
	p.ChiefComplaints()[0] = "tampered"
	if p.ChiefComplaints()[0] != "" {
		t.Error("accessor exposed internal slice")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    func(t *testing.T) PatientIntake
		want error
	}{
		{"valid", validIntake, nil},
		{"blank entries allowed", func(t *testing.T) PatientIntake { return New().WithAge("7") }, nil},
		{"missing age", func(t *testing.T) PatientIntake { return validIntake(t).WithAge("") }, ErrInvalidAge},
		{"non numeric age", func(t *testing.T) PatientIntake { return validIntake(t).WithAge("forty") }, ErrInvalidAge},
		{"negative age", func(t *testing.T) PatientIntake { return validIntake(t).WithAge("-1") }, ErrInvalidAge},
		{"age too large", func(t *testing.T) PatientIntake { return validIntake(t).WithAge("151") }, ErrInvalidAge},
		{"bad sex", func(t *testing.T) PatientIntake { return validIntake(t).WithSex("Other") }, ErrInvalidSex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p(t).Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !IsValidationError(err) {
				t.Errorf("expected IsValidationError to recognise %v", err)
			}
		})
	}
}

func TestValidate_EmptyListsFromJSON(t *testing.T) {
	var p PatientIntake
	if err := json.Unmarshal([]byte(`{"age":"30","sex":"Male","chiefComplaints":[],"history":["x"]}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.Validate(); !errors.Is(err, ErrEmptyComplaints) {
		t.Errorf("expected ErrEmptyComplaints, got %v", err)
	}

	if err := json.Unmarshal([]byte(`{"age":"30","sex":"Male","chiefComplaints":["x"]}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.Validate(); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestMarshalJSON_WireShape(t *testing.T) {
	raw, err := json.Marshal(validIntake(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"age":"42","sex":"Female","ethnicity":"Asian","chiefComplaints":["eye pain"],"history":["contact lens wearer"],"image":null}`
	if string(raw) != want {
		t.Errorf("got  %s\nwant %s", raw, want)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	p := validIntake(t).WithImage("file:///data/images/eye.png").AddHistory("steroid drops")

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got PatientIntake
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
}

func TestUnmarshalJSON_Lenient(t *testing.T) {
	var p PatientIntake
	body := `{"age":35,"sex":"Male","ethnicity":"","chiefComplaints":["pain"],"historyOfPresentIllness":["trauma"],"image":""}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Age() != "35" {
		t.Errorf("expected numeric age to decode as \"35\", got %q", p.Age())
	}
	if h := p.History(); len(h) != 1 || h[0] != "trauma" {
		t.Errorf("expected history from historyOfPresentIllness, got %q", h)
	}
	if _, ok := p.Image(); ok {
		t.Error("expected empty image to decode as absent")
	}
}
