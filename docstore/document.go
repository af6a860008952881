package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates document kinds. It never changes after creation.
type Type string

// Document types stored by the record store.
const (
	TypeOrganization Type = "organization"
	TypeUser         Type = "user"
	TypeDailyRecord  Type = "daily_record"
	TypeAttendance   Type = "attendance"
	TypeAssessment   Type = "assessment"
	TypeServicePlan  Type = "service_plan"
)

// DateLayout is the calendar-date format used by record dates. Dates are
// stored as strings in this layout so that lexicographic key order equals
// chronological order, which the index range scans rely on.
const DateLayout = "2006-01-02"

// Document is the common envelope plus the per-type payload. Envelope
// fields are owned by the store: ID and CreatedAt are immutable once set,
// Revision and UpdatedAt are stamped on every successful write. Payload
// fields live in Fields and are constrained by the type's whitelist.
type Document struct {
	ID        string
	Type      Type
	Revision  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// envelope keys reserved in the flat JSON form of a document.
var envelopeKeys = map[string]struct{}{
	"id":        {},
	"type":      {},
	"revision":  {},
	"createdAt": {},
	"updatedAt": {},
}

// fieldWhitelists maps each type to the payload fields it accepts.
// Unknown fields are rejected rather than merged blindly.
var fieldWhitelists = map[Type]map[string]struct{}{
	TypeOrganization: setOf(
		"organizationId", "name", "postalCode", "address", "phone", "fax",
		"email", "contactPerson",
	),
	TypeUser: setOf(
		"userId", "organizationId", "role", "passwordHash", "name", "kana",
		"birthDate", "email", "phone", "careLevel", "notes",
	),
	TypeDailyRecord: setOf(
		"userId", "organizationId", "recordDate", "createdBy",
		"temperature", "bloodPressureHigh", "bloodPressureLow", "pulse",
		"spo2", "weight",
		"breakfast", "lunch", "dinner", "snack", "hydration",
		"moodScore", "mood", "sleepHours", "napMinutes",
		"toiletCount", "bathing", "medication", "activity",
		"notes", "staffNotes", "familyNotes", "incident",
	),
	TypeAttendance: setOf(
		"userId", "organizationId", "attendanceDate", "createdBy",
		"arrivalTime", "departureTime", "absent", "absenceReason",
		"transport", "notes",
	),
	TypeAssessment: setOf(
		"userId", "organizationId", "createdBy",
		"category", "summary", "details", "notes",
	),
	TypeServicePlan: setOf(
		"userId", "organizationId", "createdBy",
		"title", "goals", "supports", "notes", "startDate", "endDate",
	),
}

// requiredFields maps each type to payload fields that must be present
// and non-empty for a document to be stored.
var requiredFields = map[Type][]string{
	TypeOrganization: {"organizationId", "name"},
	TypeUser:         {"userId", "organizationId", "role"},
	TypeDailyRecord:  {"userId", "recordDate"},
	TypeAttendance:   {"userId", "attendanceDate"},
	TypeAssessment:   {"userId"},
	TypeServicePlan:  {"userId"},
}

// dateFields maps diary-style types to their calendar-date field. Types
// absent from this map have no per-day uniqueness and cannot be pruned by
// date.
var dateFields = map[Type]string{
	TypeDailyRecord: "recordDate",
	TypeAttendance:  "attendanceDate",
}

func setOf(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// DateField returns the calendar-date field for typ, or "" if typ has none.
func DateField(typ Type) string {
	return dateFields[typ]
}

// knownType reports whether typ is one of the declared document types.
func knownType(typ Type) bool {
	_, ok := fieldWhitelists[typ]
	return ok
}

// validate checks the envelope and payload of a document about to be
// stored. The ID is checked by the caller (it may still be unassigned).
func (d *Document) validate() error {
	if !knownType(d.Type) {
		return fmt.Errorf("%w: unknown document type %q", ErrValidation, d.Type)
	}
	whitelist := fieldWhitelists[d.Type]
	for k := range d.Fields {
		if _, reserved := envelopeKeys[k]; reserved {
			return fmt.Errorf("%w: field %q is reserved", ErrValidation, k)
		}
		if _, ok := whitelist[k]; !ok {
			return fmt.Errorf("%w: field %q not allowed on type %q", ErrValidation, k, d.Type)
		}
	}
	for _, k := range requiredFields[d.Type] {
		if v, ok := d.Fields[k]; !ok || v == "" || v == nil {
			return fmt.Errorf("%w: type %q requires field %q", ErrValidation, d.Type, k)
		}
	}
	return nil
}

// mergeFields returns a copy of d with the whitelisted fields overlaid.
// Envelope keys in fields are silently ignored (ID, Type and CreatedAt can
// never be overwritten); fields outside the type's whitelist fail with
// ErrValidation.
func (d *Document) mergeFields(fields map[string]any) (*Document, error) {
	whitelist := fieldWhitelists[d.Type]
	out := d.Clone()
	for k, v := range fields {
		if _, reserved := envelopeKeys[k]; reserved {
			continue
		}
		if _, ok := whitelist[k]; !ok {
			return nil, fmt.Errorf("%w: field %q not allowed on type %q", ErrValidation, k, d.Type)
		}
		out.Fields[k] = v
	}
	return out, nil
}

// Clone returns a deep-enough copy: the Fields map is copied, values are
// shared (payload values are treated as immutable by convention).
func (d *Document) Clone() *Document {
	out := *d
	out.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	return &out
}

// fieldString returns the string form of a payload field for index keys
// and comparisons. Only string-valued fields participate in indexes.
func (d *Document) fieldString(name string) (string, bool) {
	v, ok := d.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MarshalJSON flattens the envelope and the payload into a single JSON
// object, the shape snapshots and external tooling expect:
//
//	{"id": ..., "type": ..., "revision": ..., "createdAt": ...,
//	 "updatedAt": ..., "recordDate": ..., "temperature": ...}
func (d *Document) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Fields)+5)
	for k, v := range d.Fields {
		flat[k] = v
	}
	flat["id"] = d.ID
	flat["type"] = d.Type
	if d.Revision != "" {
		flat["revision"] = d.Revision
	}
	if !d.CreatedAt.IsZero() {
		flat["createdAt"] = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !d.UpdatedAt.IsZero() {
		flat["updatedAt"] = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON: envelope keys are pulled
// out, everything else lands in Fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	*d = Document{Fields: make(map[string]any, len(flat))}
	for k, v := range flat {
		switch k {
		case "id":
			d.ID, _ = v.(string)
		case "type":
			if s, ok := v.(string); ok {
				d.Type = Type(s)
			}
		case "revision":
			d.Revision, _ = v.(string)
		case "createdAt":
			d.CreatedAt = parseTime(v)
		case "updatedAt":
			d.UpdatedAt = parseTime(v)
		default:
			d.Fields[k] = v
		}
	}
	return nil
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
