package characters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedField reports an unknown field name or a value of the wrong type.
var ErrMalformedField = errors.New("malformed field")

// Canonical fields that may appear in a proposal but are never editable.
var ignoredFields = map[string]struct{}{
	"character":                {},
	"codepoint":                {},
	"strokeCount":              {},
	"strokes":                  {},
	"medians":                  {},
	"radical":                  {},
	"decomposition":            {},
	"etymologyType":            {},
	"etymologyPhonetic":        {},
	"etymologySemantic":        {},
	"shuowenExplanation":       {},
	"subtlexRank":              {},
	"subtlexCount":             {},
	"jundaRank":                {},
	"historicalPronunciations": {},
	"createdAt":                {},
	"updatedAt":                {},
}

// Proposal is a partial record of editable fields. Only Present fields were supplied;
// a present field with a null value is a request to clear it and decodes to the blank value.
type Proposal struct {
	Values  Fields
	Present []FieldName
}

// Has reports whether name was supplied.
func (p Proposal) Has(name FieldName) bool {
	for _, present := range p.Present {
		if present == name {
			return true
		}
	}
	return false
}

// Snapshot completes the proposal into a full field snapshot, taking absent fields from current.
func (p Proposal) Snapshot(current Fields) Fields {
	snapshot := current
	for _, name := range p.Present {
		snapshot.copyField(name, p.Values)
	}
	return snapshot
}

// ChangedFields lists the supplied fields whose value differs from current under NormalizedEqual.
func (p Proposal) ChangedFields(current Fields) []FieldName {
	changed := make([]FieldName, 0, len(p.Present))
	for _, name := range editableFields {
		if !p.Has(name) {
			continue
		}
		if !NormalizedEqual(p.Values.Value(name), current.Value(name)) {
			changed = append(changed, name)
		}
	}
	return changed
}

// DecodeProposal validates a raw JSON object of proposed fields.
func DecodeProposal(raw map[string]json.RawMessage) (Proposal, error) {
	var proposal Proposal
	for _, name := range editableFields {
		value, ok := raw[string(name)]
		if !ok {
			continue
		}
		if err := proposal.decodeField(name, value); err != nil {
			return Proposal{}, fmt.Errorf("%w: %s: %v", ErrMalformedField, name, err)
		}
		proposal.Present = append(proposal.Present, name)
	}
	for key := range raw {
		if IsEditable(FieldName(key)) {
			continue
		}
		if _, ignored := ignoredFields[key]; ignored {
			continue
		}
		return Proposal{}, fmt.Errorf("%w: unknown field %q", ErrMalformedField, key)
	}
	return proposal, nil
}

func (p *Proposal) decodeField(name FieldName, value json.RawMessage) error {
	if isJSONNull(value) {
		p.clearField(name)
		return nil
	}
	values := &p.Values
	switch name {
	case FieldGloss:
		return decodeText(value, &values.Gloss)
	case FieldHint:
		return decodeText(value, &values.Hint)
	case FieldOriginalMeaning:
		return decodeText(value, &values.OriginalMeaning)
	case FieldVariantOf:
		return decodeText(value, &values.VariantOf)
	case FieldPinyin:
		list, err := decodeTextList(value)
		values.Pinyin = list
		return err
	case FieldSimplifiedVariants:
		list, err := decodeTextList(value)
		values.SimplifiedVariants = list
		return err
	case FieldTraditionalVariants:
		list, err := decodeTextList(value)
		values.TraditionalVariants = list
		return err
	case FieldComponents:
		var components []Component
		if err := decodeStrict(value, &components); err != nil {
			return err
		}
		if components == nil {
			components = []Component{}
		}
		values.Components = components
		return nil
	case FieldIsVerified:
		var verified bool
		if err := json.Unmarshal(value, &verified); err != nil {
			return err
		}
		values.IsVerified = &verified
		return nil
	}
	return fmt.Errorf("field %q is not editable", name)
}

// clearField stores the typed blank for name so that the clear survives CoalesceFields.
func (p *Proposal) clearField(name FieldName) {
	values := &p.Values
	switch name {
	case FieldGloss:
		values.Gloss = blankText()
	case FieldHint:
		values.Hint = blankText()
	case FieldOriginalMeaning:
		values.OriginalMeaning = blankText()
	case FieldVariantOf:
		values.VariantOf = blankText()
	case FieldPinyin:
		values.Pinyin = []string{}
	case FieldSimplifiedVariants:
		values.SimplifiedVariants = []string{}
	case FieldTraditionalVariants:
		values.TraditionalVariants = []string{}
	case FieldComponents:
		values.Components = []Component{}
	case FieldIsVerified:
		verified := false
		values.IsVerified = &verified
	}
}

func blankText() *string {
	blank := ""
	return &blank
}

func decodeText(value json.RawMessage, target **string) error {
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	*target = &text
	return nil
}

func decodeTextList(value json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(value, &list); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(list))
	for _, entry := range list {
		if entry = strings.TrimSpace(entry); entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return cleaned, nil
}

func decodeStrict(value json.RawMessage, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(value))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func isJSONNull(value json.RawMessage) bool {
	return string(bytes.TrimSpace(value)) == "null"
}
