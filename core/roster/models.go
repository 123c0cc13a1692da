package roster

import (
	"strings"
	"time"
)

// AllSubjects is the subject selector value aggregating over every subject of a class.
const AllSubjects = "all"

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = ""
)

// ParseGender maps the backend's loose gender values onto Gender.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "boy", "l":
		return GenderMale
	case "female", "f", "girl", "p":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Short returns the single letter used in report columns.
func (g Gender) Short() string {
	switch g {
	case GenderMale:
		return "M"
	case GenderFemale:
		return "F"
	default:
		return ""
	}
}

// Student is an immutable snapshot of an enrolled student for one computation pass.
type Student struct {
	ID         string    `json:"id" validate:"notblank"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Gender     Gender    `json:"gender"`
	EnrolledAt time.Time `json:"enrolled_at"`
	BirthDate  time.Time `json:"birth_date"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
}

type Class struct {
	ID   string `json:"id" validate:"notblank"`
	Name string `json:"name"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsAllSubjects reports whether `subjectID` selects the aggregate over every subject.
func IsAllSubjects(subjectID string) bool {
	id := strings.TrimSpace(subjectID)
	return id == "" || strings.EqualFold(id, AllSubjects)
}

// IDs returns the roster's student IDs in roster order.
func IDs(students []Student) []string {
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return ids
}
