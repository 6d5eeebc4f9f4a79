package wizard

import (
	"time"

	"github.com/pawfound/sighting-wizard/internal/draft"
	"github.com/pawfound/sighting-wizard/internal/phone"
)

// ValidationError reports which fields block advancement from a step. It is
// recoverable: the controller stays on the step and surfaces the messages.
type ValidationError struct {
	Step   Step
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "step " + string(e.Step) + " is incomplete"
}

// Validate checks whether the draft satisfies the requirements to leave the
// given step. It is pure and never fails hard; a non-nil result carries
// field-level messages. Steps without a gate are always valid.
func Validate(step Step, d draft.Draft) *ValidationError {
	fields := map[string]string{}

	switch step {
	case StepStart:
		if !d.Kind.Valid() {
			fields["report_kind"] = "Choose whether you lost your pet or found a stray."
		}
	case StepChoosePet:
		// Only reachable for lost_own reports.
		if d.LinkedPetID == "" {
			fields["linked_pet_id"] = "Select which of your pets this report is about."
		}
	case StepUploadPhoto:
		if !d.HasPhoto() {
			fields["photo"] = "Add a photo of the pet."
		}
	case StepEditPet:
		// Drafts linked to an existing pet profile are exempt from
		// re-collecting basic attributes.
		if d.LinkedPetID != "" {
			break
		}
		if d.Species == "" {
			fields["species"] = "Species is required."
		}
		if d.Colors == "" {
			fields["colors"] = "At least one color is required."
		}
	case StepEditPetContinued:
		// Reached only for lost_own reports. A linked pet profile already
		// carries these attributes, so the gate fires only when the link
		// was cleared mid-flow.
		if d.LinkedPetID != "" {
			break
		}
		if d.Age == "" {
			fields["age"] = "Age is required."
		}
		if d.Gender == "" {
			fields["gender"] = "Gender is required."
		}
		if d.PetName == "" {
			fields["pet_name"] = "Your pet's name is required."
		}
		if d.Size == "" {
			fields["size"] = "Size is required."
		}
	case StepLocatePet:
		if !d.HasCoordinates() {
			fields["location"] = "Mark where the pet was last seen."
		}
	case StepAddTime:
		if d.LastSeen == nil {
			fields["last_seen"] = "Tell us when the pet was last seen."
		} else if d.LastSeen.After(time.Now()) {
			fields["last_seen"] = "The sighting time cannot be in the future."
		}
	case StepAddContact, StepSubmit:
		if d.ContactPhone == "" {
			fields["contact_phone"] = "A contact phone number is required."
		} else if !phone.Valid(d.ContactPhone, d.ContactCountry) {
			fields["contact_phone"] = "This phone number is not valid for the selected country."
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Step: step, Fields: fields}
}
