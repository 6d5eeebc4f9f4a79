package wizard

import (
	"testing"

	"github.com/pawfound/sighting-wizard/internal/model"
)

func TestNextTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current Step
		kind    model.ReportKind
		want    Step
	}{
		{"lost pet starts with pet selection", StepStart, model.KindLostOwn, StepChoosePet},
		{"found stray skips pet selection", StepStart, model.KindFoundStray, StepUploadPhoto},
		{"choose pet leads to photo", StepChoosePet, model.KindLostOwn, StepUploadPhoto},
		{"photo leads to attributes", StepUploadPhoto, model.KindFoundStray, StepEditPet},
		{"lost pet gets the extended attribute page", StepEditPet, model.KindLostOwn, StepEditPetContinued},
		{"found stray skips the extended attribute page", StepEditPet, model.KindFoundStray, StepLocatePet},
		{"extended attributes lead to location", StepEditPetContinued, model.KindLostOwn, StepLocatePet},
		{"location leads to time", StepLocatePet, model.KindFoundStray, StepAddTime},
		{"time leads to contact", StepAddTime, model.KindFoundStray, StepAddContact},
		{"contact leads to submit", StepAddContact, model.KindFoundStray, StepSubmit},
		{"submit never advances on its own", StepSubmit, model.KindFoundStray, StepSubmit},
		{"complete is terminal", StepComplete, model.KindFoundStray, StepComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.current, tt.kind, false); got != tt.want {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.current, tt.kind, got, tt.want)
			}
		})
	}
}

// walk runs the graph from start to submit and returns the visited steps.
func walk(kind model.ReportKind) []Step {
	steps := []Step{StepStart}
	cur := StepStart
	for cur != StepSubmit {
		cur = Next(cur, kind, false)
		steps = append(steps, cur)
	}
	return steps
}

func TestFoundStrayNeverVisitsChoosePet(t *testing.T) {
	for _, s := range walk(model.KindFoundStray) {
		if s == StepChoosePet {
			t.Fatal("found_stray walk visited choose_pet")
		}
		if s == StepEditPetContinued {
			t.Fatal("found_stray walk visited edit_pet_continued")
		}
	}
}

func TestLostOwnAlwaysVisitsChoosePet(t *testing.T) {
	var sawChoose, sawContinued bool
	for _, s := range walk(model.KindLostOwn) {
		if s == StepChoosePet {
			sawChoose = true
		}
		if s == StepEditPetContinued {
			sawContinued = true
		}
	}
	if !sawChoose {
		t.Error("lost_own walk skipped choose_pet")
	}
	if !sawContinued {
		t.Error("lost_own walk skipped edit_pet_continued")
	}
}
