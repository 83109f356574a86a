package characters

import (
	"reflect"
	"slices"

	"gorm.io/datatypes"
)

// FieldName names one editable field in its wire form.
type FieldName string

// Editable fields, in display order.
const (
	FieldGloss               FieldName = "gloss"
	FieldHint                FieldName = "hint"
	FieldOriginalMeaning     FieldName = "originalMeaning"
	FieldPinyin              FieldName = "pinyin"
	FieldComponents          FieldName = "components"
	FieldVariantOf           FieldName = "variantOf"
	FieldSimplifiedVariants  FieldName = "simplifiedVariants"
	FieldTraditionalVariants FieldName = "traditionalVariants"
	FieldIsVerified          FieldName = "isVerified"
)

var editableFields = []FieldName{
	FieldGloss,
	FieldHint,
	FieldOriginalMeaning,
	FieldPinyin,
	FieldComponents,
	FieldVariantOf,
	FieldSimplifiedVariants,
	FieldTraditionalVariants,
	FieldIsVerified,
}

// EditableFields returns the editable field whitelist.
func EditableFields() []FieldName {
	return slices.Clone(editableFields)
}

// IsEditable reports whether name is on the whitelist.
func IsEditable(name FieldName) bool {
	return slices.Contains(editableFields, name)
}

// Fields is a full snapshot of every editable field. A nil pointer or nil slice is null.
type Fields struct {
	Gloss               *string                        `gorm:"column:gloss" json:"gloss"`
	Hint                *string                        `gorm:"column:hint" json:"hint"`
	OriginalMeaning     *string                        `gorm:"column:original_meaning" json:"originalMeaning"`
	Pinyin              datatypes.JSONSlice[string]    `gorm:"column:pinyin" json:"pinyin"`
	Components          datatypes.JSONSlice[Component] `gorm:"column:components" json:"components"`
	VariantOf           *string                        `gorm:"column:variant_of;size:16" json:"variantOf"`
	SimplifiedVariants  datatypes.JSONSlice[string]    `gorm:"column:simplified_variants" json:"simplifiedVariants"`
	TraditionalVariants datatypes.JSONSlice[string]    `gorm:"column:traditional_variants" json:"traditionalVariants"`
	IsVerified          *bool                          `gorm:"column:is_verified" json:"isVerified"`
}

// EditableFields extracts the editable part of a canonical record.
func (c Character) EditableFields() Fields {
	verified := c.IsVerified
	return Fields{
		Gloss:               c.Gloss,
		Hint:                c.Hint,
		OriginalMeaning:     c.OriginalMeaning,
		Pinyin:              c.Pinyin,
		Components:          c.Components,
		VariantOf:           c.VariantOf,
		SimplifiedVariants:  c.SimplifiedVariants,
		TraditionalVariants: c.TraditionalVariants,
		IsVerified:          &verified,
	}
}

// WithFields returns a copy of c whose editable fields are replaced by fields.
func (c Character) WithFields(fields Fields) Character {
	c.Gloss = fields.Gloss
	c.Hint = fields.Hint
	c.OriginalMeaning = fields.OriginalMeaning
	c.Pinyin = fields.Pinyin
	c.Components = fields.Components
	c.VariantOf = fields.VariantOf
	c.SimplifiedVariants = fields.SimplifiedVariants
	c.TraditionalVariants = fields.TraditionalVariants
	c.IsVerified = fields.IsVerified != nil && *fields.IsVerified
	return c
}

// Overlay applies the non-null editable fields of an approved revision on top of a canonical record.
func Overlay(record Character, revision Fields) Character {
	return record.WithFields(CoalesceFields(revision, record.EditableFields()))
}

// CoalesceFields takes every non-null field of revision and falls back to base for the rest.
func CoalesceFields(revision, base Fields) Fields {
	merged := base
	for _, name := range editableFields {
		if !revision.isNull(name) {
			merged.copyField(name, revision)
		}
	}
	return merged
}

// MergeOnApprove keeps the revision's values for changed fields and refreshes every other
// field from current. A nil changed list marks every field as changed.
func MergeOnApprove(revision Fields, changed []FieldName, current Fields) Fields {
	if changed == nil {
		return revision
	}
	merged := current
	for _, name := range changed {
		merged.copyField(name, revision)
	}
	return merged
}

// Value returns the field's value with nulls collapsed to the zero value of its type.
func (f Fields) Value(name FieldName) any {
	switch name {
	case FieldGloss:
		return deref(f.Gloss)
	case FieldHint:
		return deref(f.Hint)
	case FieldOriginalMeaning:
		return deref(f.OriginalMeaning)
	case FieldPinyin:
		return []string(f.Pinyin)
	case FieldComponents:
		return []Component(f.Components)
	case FieldVariantOf:
		return deref(f.VariantOf)
	case FieldSimplifiedVariants:
		return []string(f.SimplifiedVariants)
	case FieldTraditionalVariants:
		return []string(f.TraditionalVariants)
	case FieldIsVerified:
		return deref(f.IsVerified)
	}
	return nil
}

func (f Fields) isNull(name FieldName) bool {
	switch name {
	case FieldGloss:
		return f.Gloss == nil
	case FieldHint:
		return f.Hint == nil
	case FieldOriginalMeaning:
		return f.OriginalMeaning == nil
	case FieldPinyin:
		return f.Pinyin == nil
	case FieldComponents:
		return f.Components == nil
	case FieldVariantOf:
		return f.VariantOf == nil
	case FieldSimplifiedVariants:
		return f.SimplifiedVariants == nil
	case FieldTraditionalVariants:
		return f.TraditionalVariants == nil
	case FieldIsVerified:
		return f.IsVerified == nil
	}
	return true
}

func (f *Fields) copyField(name FieldName, from Fields) {
	switch name {
	case FieldGloss:
		f.Gloss = from.Gloss
	case FieldHint:
		f.Hint = from.Hint
	case FieldOriginalMeaning:
		f.OriginalMeaning = from.OriginalMeaning
	case FieldPinyin:
		f.Pinyin = from.Pinyin
	case FieldComponents:
		f.Components = from.Components
	case FieldVariantOf:
		f.VariantOf = from.VariantOf
	case FieldSimplifiedVariants:
		f.SimplifiedVariants = from.SimplifiedVariants
	case FieldTraditionalVariants:
		f.TraditionalVariants = from.TraditionalVariants
	case FieldIsVerified:
		f.IsVerified = from.IsVerified
	}
}

// NormalizedEqual compares two field values treating null, false, "" and [] as the same blank value.
func NormalizedEqual(left, right any) bool {
	leftBlank, rightBlank := isBlank(left), isBlank(right)
	if leftBlank || rightBlank {
		return leftBlank && rightBlank
	}
	return reflect.DeepEqual(left, right)
}

func isBlank(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case bool:
		return !typed
	case []string:
		return len(typed) == 0
	case []Component:
		return len(typed) == 0
	}
	return false
}

func deref[T any](value *T) T {
	var zero T
	if value == nil {
		return zero
	}
	return *value
}
