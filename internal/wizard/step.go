// Package wizard implements the guided report collection engine: a step
// state machine with branching, per-step validation gates, back-navigation
// history, and an in-flight guard around asynchronous side effects.
package wizard

import "github.com/pawfound/sighting-wizard/internal/model"

// Step is a node in the wizard's step graph.
type Step string

const (
	StepStart            Step = "start"
	StepChoosePet        Step = "choose_pet"
	StepUploadPhoto      Step = "upload_photo"
	StepEditPet          Step = "edit_pet"
	StepEditPetContinued Step = "edit_pet_continued"
	StepLocatePet        Step = "locate_pet"
	StepAddTime          Step = "add_time"
	StepAddContact       Step = "add_contact"
	StepSubmit           Step = "submit"
	StepComplete         Step = "complete"
)

// Next returns the step that follows current. The graph is a fixed sequence
// with two branches: choose_pet is visited only when reporting one's own
// lost pet, and edit_pet_continued (owner-pet details) only for that same
// kind. The submit -> complete transition is driven by the submission
// pipeline, not by Next; submit and complete map to themselves.
func Next(current Step, kind model.ReportKind, hasLinkedPet bool) Step {
	switch current {
	case StepStart:
		if kind == model.KindLostOwn {
			return StepChoosePet
		}
		return StepUploadPhoto
	case StepChoosePet:
		return StepUploadPhoto
	case StepUploadPhoto:
		return StepEditPet
	case StepEditPet:
		if kind == model.KindLostOwn {
			return StepEditPetContinued
		}
		return StepLocatePet
	case StepEditPetContinued:
		return StepLocatePet
	case StepLocatePet:
		return StepAddTime
	case StepAddTime:
		return StepAddContact
	case StepAddContact:
		return StepSubmit
	default:
		return current
	}
}
