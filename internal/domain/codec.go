package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LedgerDocument is the unit of persistence for one user: the symptom log and its
// trigger store are always read and written together.
type LedgerDocument struct {
	UserID   string
	Log      *SymptomLog
	Triggers TriggerStore
	// Version is the optimistic concurrency token. Zero means never persisted.
	Version int64
}

// NewLedgerDocument returns an empty, never-persisted document.
func NewLedgerDocument(userID string, now time.Time) *LedgerDocument {
	return &LedgerDocument{
		UserID:   userID,
		Log:      NewSymptomLog(userID, now),
		Triggers: TriggerStore{},
	}
}

// legacyTimeLayout is the timestamp format written by the CMS plugin.
const legacyTimeLayout = "2006-01-02 15:04:05"

// EncodeLog serializes a log in its persisted shape.
func EncodeLog(l *SymptomLog) ([]byte, error) {
	l.Rebuild()
	return json.Marshal(l)
}

// EncodeTriggers serializes a trigger store in its persisted shape.
func EncodeTriggers(s TriggerStore) ([]byte, error) {
	out := make(map[string][]json.RawMessage, len(s))
	for name, conds := range s {
		recs := make([]json.RawMessage, 0, len(conds))
		for _, c := range conds {
			data, err := MarshalCondition(c)
			if err != nil {
				return nil, fmt.Errorf("encoding condition for %q: %w", name, err)
			}
			recs = append(recs, data)
		}
		out[name] = recs
	}
	return json.Marshal(out)
}

func isEmptyDocument(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeLog parses a persisted log. It never fails: a malformed document yields an
// empty log, and malformed fields inside a record are defaulted so the record is
// kept. Every degradation is described in the returned warnings.
func DecodeLog(userID string, data []byte) (*SymptomLog, []string) {
	var warnings []string
	log := NewSymptomLog(userID, time.Time{})
	if isEmptyDocument(data) {
		return log, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return log, []string{fmt.Sprintf("symptom log is not a JSON object, treating as empty: %v", err)}
	}

	if raw, ok := top["last_updated"]; ok {
		if t, ok := decodeTime(raw); ok {
			log.LastUpdated = t
		}
	}

	rawSymptoms, ok := top["symptoms"]
	if !ok || isEmptyDocument(rawSymptoms) {
		return log, nil
	}
	var records map[string]json.RawMessage
	if err := json.Unmarshal(rawSymptoms, &records); err != nil {
		return log, []string{fmt.Sprintf("symptoms field is not an object, treating as empty: %v", err)}
	}

	for key, raw := range records {
		if key == "" {
			warnings = append(warnings, "dropping symptom record with empty name")
			continue
		}
		rec, recWarnings, ok := decodeRecord(key, raw)
		warnings = append(warnings, recWarnings...)
		if !ok {
			continue
		}
		log.Put(rec)
	}
	log.Rebuild()
	return log, warnings
}

func decodeRecord(key string, raw json.RawMessage) (*SymptomRecord, []string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, []string{fmt.Sprintf("symptom %q: record is not an object, dropping: %v", key, err)}, false
	}

	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf("symptom %q: ", key)+fmt.Sprintf(format, args...))
	}

	rec := &SymptomRecord{Name: key}
	if raw, ok := fields["name"]; ok {
		if name, ok := decodeString(raw); !ok || name != key {
			warn("name field %s does not match key, using key", string(raw))
		}
	}
	if raw, ok := fields["category"]; ok {
		if cat, ok := decodeString(raw); ok {
			rec.Category = cat
		} else {
			warn("malformed category %s", string(raw))
		}
	}
	if raw, ok := fields["assessments"]; ok {
		values, ok := decodeStrings(raw)
		if !ok {
			warn("malformed assessments %s", string(raw))
		}
		for _, v := range values {
			rec.AddAssessment(AssessmentType(v))
		}
	}
	if raw, ok := fields["severity"]; ok {
		values, ok := decodeStrings(raw)
		if !ok {
			warn("malformed severity %s", string(raw))
		}
		for _, v := range values {
			if s, ok := ParseSeverity(v); ok {
				rec.Severity = append(rec.Severity, s)
			} else {
				warn("dropping unknown severity %q", v)
			}
		}
	}
	if raw, ok := fields["frequency"]; ok {
		values, ok := decodeStrings(raw)
		if !ok {
			warn("malformed frequency %s", string(raw))
		}
		for _, v := range values {
			if f, ok := ParseFrequency(v); ok {
				rec.Frequency = append(rec.Frequency, f)
			} else {
				warn("dropping unknown frequency %q", v)
			}
		}
	}
	if raw, ok := fields["first_reported"]; ok {
		if t, ok := decodeTime(raw); ok {
			rec.FirstReported = t
		} else {
			warn("malformed first_reported %s", string(raw))
		}
	}
	if raw, ok := fields["last_reported"]; ok {
		if t, ok := decodeTime(raw); ok {
			rec.LastReported = t
		} else {
			warn("malformed last_reported %s", string(raw))
		}
	}
	switch {
	case rec.FirstReported.IsZero() && !rec.LastReported.IsZero():
		rec.FirstReported = rec.LastReported
	case rec.LastReported.IsZero() && !rec.FirstReported.IsZero():
		rec.LastReported = rec.FirstReported
	}

	rec.OccurrenceCount = 1
	if raw, ok := fields["occurrence_count"]; ok {
		if n, ok := decodeInt(raw); ok && n >= 1 {
			rec.OccurrenceCount = n
		} else {
			warn("malformed occurrence_count %s, using 1", string(raw))
		}
	}
	return rec, warnings, true
}

// DecodeTriggers parses a persisted trigger store. Conditions that cannot be
// decoded are kept as UndecodedCondition, so a later save writes them back, and
// are reported in the warnings.
func DecodeTriggers(data []byte) (TriggerStore, []string) {
	store := TriggerStore{}
	if isEmptyDocument(data) {
		return store, nil
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return store, []string{fmt.Sprintf("trigger store is not a JSON object, treating as empty: %v", err)}
	}

	var warnings []string
	for name, raw := range top {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			warnings = append(warnings, fmt.Sprintf("conditions for %q are not a list, keeping them undecoded: %v", name, err))
			store[name] = []Condition{NewUndecodedCondition(raw, err)}
			continue
		}
		conds := make([]Condition, 0, len(items))
		for _, item := range items {
			c, err := UnmarshalCondition(item)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("keeping undecodable condition for %q: %v", name, err))
				conds = append(conds, NewUndecodedCondition(item, err))
				continue
			}
			conds = append(conds, c)
		}
		if len(conds) > 0 {
			store[name] = conds
		}
	}
	return store, warnings
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeStrings accepts either a list of strings or a single scalar string.
func decodeStrings(raw json.RawMessage) ([]string, bool) {
	if isEmptyDocument(raw) {
		return nil, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	if s, ok := decodeString(raw); ok {
		if s == "" {
			return nil, true
		}
		return []string{s}, true
	}
	return nil, false
}

func decodeTime(raw json.RawMessage) (time.Time, bool) {
	s, ok := decodeString(raw)
	if !ok {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err == nil {
			return time.Unix(unix, 0).UTC(), true
		}
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(legacyTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func decodeInt(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	if s, ok := decodeString(raw); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}
