package flow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"bookline/models"
	"bookline/services/booking"
)

// FieldSpec describes one free-text step of the identity/address form.
type FieldSpec struct {
	Name     string
	Label    string
	Prompt   string
	Optional bool
	// SkipWith is how many following fields are skipped together with this
	// one when the user declines it. Declining the licence number also skips
	// its issue and expiry dates.
	SkipWith int
	Validate func(string) (string, error) // returns the normalized value
	Example  string
}

const dateLayout = "02/01/2006"

var (
	nameRe       = regexp.MustCompile(`^[\p{L}][\p{L}' -]*$`)
	licenceRe    = regexp.MustCompile(`^[A-Za-z0-9-]{5,20}$`)
	streetNumRe  = regexp.MustCompile(`^\d{1,6}[A-Za-z]?$`)
	postalCodeRe = regexp.MustCompile(`^([A-Za-z]\d[A-Za-z]) ?(\d[A-Za-z]\d)$`)
)

func validateName(label string) func(string) (string, error) {
	return func(v string) (string, error) {
		v = strings.TrimSpace(v)
		if !nameRe.MatchString(v) {
			return "", booking.NewValidationError(label, "use letters, spaces, apostrophes or hyphens only")
		}
		return v, nil
	}
}

func validateDate(label string) func(string) (string, error) {
	return func(v string) (string, error) {
		v = strings.TrimSpace(v)
		if _, err := time.Parse(dateLayout, v); err != nil {
			return "", booking.NewValidationError(label, "enter the date as DD/MM/YYYY")
		}
		return v, nil
	}
}

func validateLicence(v string) (string, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if !licenceRe.MatchString(v) {
		return "", booking.NewValidationError("licence number", "5-20 letters, digits or dashes")
	}
	return v, nil
}

func validateStreetNumber(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !streetNumRe.MatchString(v) {
		return "", booking.NewValidationError("street number", "enter the house or building number")
	}
	return v, nil
}

func validatePostalCode(v string) (string, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	m := postalCodeRe.FindStringSubmatch(v)
	if m == nil {
		return "", booking.NewValidationError("postal code", "use the format A2A 1B4")
	}
	return m[1] + " " + m[2], nil
}

func validateFreeText(label string) func(string) (string, error) {
	return func(v string) (string, error) {
		v = strings.TrimSpace(v)
		if v == "" {
			return "", booking.NewValidationError(label, "this field cannot be empty")
		}
		return v, nil
	}
}

// formFields is the ordered identity + address form. Index positions matter:
// SkipWith counts forward from the declined field.
var formFields = []FieldSpec{
	{Name: "first_name", Label: "First name", Prompt: "What is your first name?", Validate: validateName("first name")},
	{Name: "middle_name", Label: "Middle name", Prompt: "What is your middle name?", Optional: true, Validate: validateName("middle name")},
	{Name: "last_name", Label: "Last name", Prompt: "What is your last name?", Validate: validateName("last name")},
	{Name: "date_of_birth", Label: "Date of birth", Prompt: "What is your date of birth? (DD/MM/YYYY)", Validate: validateDate("date of birth"), Example: "23/04/1991"},
	{Name: "licence_number", Label: "Licence number", Prompt: "What is your driver's licence number?", Optional: true, SkipWith: 2, Validate: validateLicence},
	{Name: "licence_issue", Label: "Licence issued", Prompt: "When was the licence issued? (DD/MM/YYYY)", Validate: validateDate("licence issue date")},
	{Name: "licence_expiry", Label: "Licence expires", Prompt: "When does the licence expire? (DD/MM/YYYY)", Validate: validateDate("licence expiry date")},
	{Name: "suite", Label: "Suite", Prompt: "Suite or unit number?", Optional: true, Validate: validateFreeText("suite")},
	{Name: "street_number", Label: "Street number", Prompt: "What is your street number?", Validate: validateStreetNumber},
	{Name: "street_name", Label: "Street name", Prompt: "What is your street name?", Validate: validateFreeText("street name")},
	{Name: "city", Label: "City", Prompt: "Which city?", Validate: validateName("city")},
	{Name: "province", Label: "Province", Prompt: "Which province?", Validate: validateName("province")},
	{Name: "postal_code", Label: "Postal code", Prompt: "What is your postal code? (A2A 1B4)", Validate: validatePostalCode, Example: "K1A 0B1"},
}

func fieldByName(name string) (FieldSpec, int, bool) {
	for i, f := range formFields {
		if f.Name == name {
			return f, i, true
		}
	}
	return FieldSpec{}, 0, false
}

// ParseRoster parses a bulk upload: one subject per line, `first,last,dob`.
// Blank lines are ignored; any malformed line fails the whole roster so no
// subject can be silently dropped.
func ParseRoster(text string) ([]models.Subject, error) {
	var subjects []models.Subject
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, booking.NewValidationError(
				fmt.Sprintf("line %d", i+1), "expected first,last,dob")
		}
		first := strings.TrimSpace(parts[0])
		last := strings.TrimSpace(parts[1])
		dob := strings.TrimSpace(parts[2])
		if !nameRe.MatchString(first) || !nameRe.MatchString(last) {
			return nil, booking.NewValidationError(
				fmt.Sprintf("line %d", i+1), "names may use letters, spaces, apostrophes or hyphens only")
		}
		if _, err := time.Parse(dateLayout, dob); err != nil {
			return nil, booking.NewValidationError(
				fmt.Sprintf("line %d", i+1), "date of birth must be DD/MM/YYYY")
		}
		subjects = append(subjects, models.Subject{FirstName: first, LastName: last, DateOfBirth: dob})
	}
	if len(subjects) == 0 {
		return nil, booking.NewValidationError("roster", "no subjects found")
	}
	return subjects, nil
}
