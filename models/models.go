package models

import (
	"strconv"
	"time"
)

// TimeLayout is the canonical cell format for timestamps in the remote
// spreadsheet ("date time" with a space separator).
const TimeLayout = "2006-01-02 15:04:05"

// Roles stored in the user sheet.
const (
	RoleUser       = "user"
	RoleSupervisor = "supervisor"
)

// ActivityColumns is the header row of the activity sheet, in column order.
var ActivityColumns = []string{
	"ID", "Owner", "Timestamp", "MacroCategory", "Subcategory", "Activity",
	"Notes", "Hours", "Minutes", "SampleCount", "SampleDiseaseType",
	"ReportCount", "ReportDiseaseType",
}

// UserColumns is the header row of the user sheet.
var UserColumns = []string{"Username", "Password", "Role"}

// OptInt is an integer cell that may be missing. A missing value serializes
// to the empty string and survives load/save round-trips, while a real 0
// stays a 0.
type OptInt struct {
	Value int
	Valid bool
}

func Int(v int) OptInt {
	return OptInt{Value: v, Valid: true}
}

// ParseOptInt coerces a raw cell to an OptInt. Unparsable input degrades to
// missing rather than an error.
func ParseOptInt(s string) OptInt {
	if s == "" {
		return OptInt{}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return OptInt{}
	}
	return OptInt{Value: v, Valid: true}
}

func (o OptInt) String() string {
	if !o.Valid {
		return ""
	}
	return strconv.Itoa(o.Value)
}

// Or returns the value, or fallback when missing.
func (o OptInt) Or(fallback int) int {
	if !o.Valid {
		return fallback
	}
	return o.Value
}

// ActivityRecord is one logged work item. A zero Timestamp means the cell
// was empty or unparsable in the remote store.
type ActivityRecord struct {
	ID                int       `json:"id"`
	Owner             string    `json:"owner"`
	Timestamp         time.Time `json:"timestamp"`
	MacroCategory     string    `json:"macro_category"`
	Subcategory       string    `json:"subcategory"`
	Activity          string    `json:"activity"`
	Notes             string    `json:"notes"`
	Hours             OptInt    `json:"hours"`
	Minutes           OptInt    `json:"minutes"`
	SampleCount       OptInt    `json:"sample_count"`
	SampleDiseaseType string    `json:"sample_disease_type"`
	ReportCount       OptInt    `json:"report_count"`
	ReportDiseaseType string    `json:"report_disease_type"`
}

// UserAccount is one row of the user sheet. PasswordHash normally holds a
// bcrypt hash; legacy rows may still carry a plaintext password.
type UserAccount struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
