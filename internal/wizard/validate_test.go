package wizard

import (
	"testing"
	"time"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/model"
)

func f64(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		step      Step
		d         draft.Draft
		wantField string // empty means valid
	}{
		{
			name:      "start requires a kind",
			step:      StepStart,
			d:         draft.Draft{},
			wantField: "report_kind",
		},
		{
			name: "start passes with a kind",
			step: StepStart,
			d:    draft.Draft{Kind: model.KindFoundStray},
		},
		{
			name:      "choose pet requires a selection",
			step:      StepChoosePet,
			d:         draft.Draft{Kind: model.KindLostOwn},
			wantField: "linked_pet_id",
		},
		{
			name:      "photo step requires a photo",
			step:      StepUploadPhoto,
			d:         draft.Draft{},
			wantField: "photo",
		},
		{
			name: "photo step passes with a local photo",
			step: StepUploadPhoto,
			d:    draft.Draft{PhotoLocalPath: "/tmp/p.jpg"},
		},
		{
			name:      "attributes require species",
			step:      StepEditPet,
			d:         draft.Draft{Colors: "black"},
			wantField: "species",
		},
		{
			name:      "attributes require colors",
			step:      StepEditPet,
			d:         draft.Draft{Species: "dog"},
			wantField: "colors",
		},
		{
			name: "linked pet is exempt from attribute collection",
			step: StepEditPet,
			d:    draft.Draft{LinkedPetID: "pet-1"},
		},
		{
			name:      "lost pet details require a name",
			step:      StepEditPetContinued,
			d:         draft.Draft{Kind: model.KindLostOwn, Age: "3", Gender: "male", Size: model.SizeMedium},
			wantField: "pet_name",
		},
		{
			name: "linked pet profile satisfies the owner details gate",
			step: StepEditPetContinued,
			d:    draft.Draft{Kind: model.KindLostOwn, LinkedPetID: "pet-1"},
		},
		{
			name:      "clearing the pet link re-enables the owner details gate",
			step:      StepEditPetContinued,
			d:         draft.Draft{Kind: model.KindLostOwn, PetName: "Rex", Gender: "male", Size: model.SizeMedium},
			wantField: "age",
		},
		{
			name:      "location requires coordinates",
			step:      StepLocatePet,
			d:         draft.Draft{LocationText: "Main St"},
			wantField: "location",
		},
		{
			name: "location passes with coordinates",
			step: StepLocatePet,
			d:    draft.Draft{Latitude: f64(34.05), Longitude: f64(-118.24)},
		},
		{
			name:      "time is required",
			step:      StepAddTime,
			d:         draft.Draft{},
			wantField: "last_seen",
		},
		{
			name:      "future time is rejected",
			step:      StepAddTime,
			d:         draft.Draft{LastSeen: &future},
			wantField: "last_seen",
		},
		{
			name: "past time passes",
			step: StepAddTime,
			d:    draft.Draft{LastSeen: &past},
		},
		{
			name:      "contact requires a phone",
			step:      StepAddContact,
			d:         draft.Draft{},
			wantField: "contact_phone",
		},
		{
			name:      "contact rejects an invalid phone",
			step:      StepAddContact,
			d:         draft.Draft{ContactPhone: "12345", ContactCountry: "US"},
			wantField: "contact_phone",
		},
		{
			name: "contact passes with a valid phone",
			step: StepAddContact,
			d:    draft.Draft{ContactPhone: "+12125551234", ContactCountry: "US"},
		},
		{
			name: "complete has no gate",
			step: StepComplete,
			d:    draft.Draft{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.step, tt.d)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate(%s) = %v, want nil", tt.step, err.Fields)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%s) = nil, want error on %q", tt.step, tt.wantField)
			}
			if _, ok := err.Fields[tt.wantField]; !ok {
				t.Errorf("Validate(%s) fields = %v, want message for %q", tt.step, err.Fields, tt.wantField)
			}
		})
	}
}

// A timestamp equal to the current instant is on-time, not in the future.
func TestValidateAddTimeBoundary(t *testing.T) {
	now := time.Now()
	d := draft.Draft{LastSeen: &now}
	if err := Validate(StepAddTime, d); err != nil {
		t.Fatalf("Validate(add_time, now) = %v, want nil", err.Fields)
	}
}
