package models

import "strings"

// Record field names used throughout the tool.
const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldCompany  = "company"
	FieldSector   = "sector"
	FieldCity     = "city"
	FieldPosition = "position"
)

// Record is one row of recipient data keyed by column name.
// Treat it as immutable; WithDefaults returns a copy.
type Record map[string]string

// Email returns the trimmed recipient address, or "" when absent.
func (r Record) Email() string {
	return strings.TrimSpace(r[FieldEmail])
}

// Get returns the value for key and whether it is present and non-empty.
func (r Record) Get(key string) (string, bool) {
	v, ok := r[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// WithDefaults returns a copy of r where empty or missing fields are filled
// from defaults.
func (r Record) WithDefaults(defaults map[string]string) Record {
	out := make(Record, len(r)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range r {
		if strings.TrimSpace(v) == "" {
			if _, ok := defaults[k]; ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// DefaultFields are the fallbacks applied to optional record fields.
func DefaultFields() map[string]string {
	return map[string]string{
		FieldName:     "Hiring Manager",
		FieldCompany:  "your company",
		FieldSector:   "your sector",
		FieldCity:     "",
		FieldPosition: "the open position",
	}
}
