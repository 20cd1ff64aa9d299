package extractor

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Field is a semantic case attribute rendered on the detail page.
type Field string

const (
	FieldCNR                Field = "cnr"
	FieldCaseType           Field = "case_type"
	FieldCourtInfo          Field = "court_info"
	FieldFilingNumber       Field = "filing_number"
	FieldRegistrationNumber Field = "registration_number"
	FieldNextHearing        Field = "next_hearing_date"
)

// FieldLabels maps one field to the label texts the portal has used for it.
type FieldLabels struct {
	Field  Field
	Labels []string
}

// FieldMap is the single lookup table tying portal labels to fields. Order
// matters only when two fields could claim the same label.
type FieldMap []FieldLabels

// DefaultFieldMap matches the eCourts case-detail template.
var DefaultFieldMap = FieldMap{
	{FieldCNR, []string{"cnr number", "cnr no", "cnr"}},
	{FieldCaseType, []string{"case type"}},
	{FieldCourtInfo, []string{"court number and judge", "court no and judge", "court number", "coram"}},
	{FieldFilingNumber, []string{"filing number", "filing no"}},
	{FieldRegistrationNumber, []string{"registration number", "registration no", "reg no"}},
	{FieldNextHearing, []string{"next hearing date", "next date", "next date of hearing", "next hearing"}},
}

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a drifted label.
const fuzzyThreshold = 0.95

var (
	nonLabelChars = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaces        = regexp.MustCompile(`\s+`)
)

func normalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = nonLabelChars.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Lookup resolves a rendered label to a field. Exact alias matches win;
// otherwise the closest alias above the fuzzy threshold is used.
func (m FieldMap) Lookup(label string) (Field, bool) {
	norm := normalizeLabel(label)
	if norm == "" {
		return "", false
	}

	for _, fl := range m {
		for _, alias := range fl.Labels {
			if norm == alias {
				return fl.Field, true
			}
		}
	}

	var (
		best      Field
		bestScore float64
	)
	for _, fl := range m {
		for _, alias := range fl.Labels {
			score := matchr.JaroWinkler(norm, alias, false)
			if score > bestScore {
				best, bestScore = fl.Field, score
			}
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return "", false
}

// Fields lists every field in map order.
func (m FieldMap) Fields() []Field {
	out := make([]Field, 0, len(m))
	for _, fl := range m {
		out = append(out, fl.Field)
	}
	return out
}
