package corpora

import (
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/datatypes"
)

// DictionaryRow is one curated dictionary entry.
type DictionaryRow struct {
	Key                 string                                    `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character           string                                    `gorm:"column:hanzi;size:16;not null" json:"char"`
	Gloss               *string                                   `gorm:"column:gloss" json:"gloss"`
	Hint                *string                                   `gorm:"column:hint" json:"hint"`
	OriginalMeaning     *string                                   `gorm:"column:original_meaning" json:"originalMeaning"`
	Pinyin              datatypes.JSONSlice[string]               `gorm:"column:pinyin" json:"pinyin"`
	Components          datatypes.JSONSlice[characters.Component] `gorm:"column:components" json:"components"`
	VariantOf           *string                                   `gorm:"column:variant_of;size:16" json:"variantOf"`
	SimplifiedVariants  datatypes.JSONSlice[string]               `gorm:"column:simplified_variants" json:"simplifiedVariants"`
	TraditionalVariants datatypes.JSONSlice[string]               `gorm:"column:traditional_variants" json:"traditionalVariants"`
	IsVerified          *bool                                     `gorm:"column:is_verified" json:"isVerified"`
	StrokeCount         *int                                      `gorm:"column:stroke_count" json:"strokeCount"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (DictionaryRow) TableName() string {
	return "src_dictionary"
}

// RowKey returns the natural key.
func (row DictionaryRow) RowKey() string {
	return row.Key
}

func dictionaryCorpus() snapshots.Corpus[DictionaryRow] {
	return snapshots.Corpus[DictionaryRow]{
		Name: Dictionary,
		Parse: ndjsonParser(func(row *DictionaryRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			row.Key = row.Character
			row.Gloss = trimOptional(row.Gloss)
			row.Hint = trimOptional(row.Hint)
			row.OriginalMeaning = trimOptional(row.OriginalMeaning)
			row.VariantOf = trimOptional(row.VariantOf)
			row.Pinyin = trimList(row.Pinyin)
			row.SimplifiedVariants = trimList(row.SimplifiedVariants)
			row.TraditionalVariants = trimList(row.TraditionalVariants)
			return nil
		}),
		SamePayload: func(stored, incoming *DictionaryRow) bool {
			return samePointer(stored.Gloss, incoming.Gloss) &&
				samePointer(stored.Hint, incoming.Hint) &&
				samePointer(stored.OriginalMeaning, incoming.OriginalMeaning) &&
				sameList(stored.Pinyin, incoming.Pinyin) &&
				sameList(stored.Components, incoming.Components) &&
				samePointer(stored.VariantOf, incoming.VariantOf) &&
				sameList(stored.SimplifiedVariants, incoming.SimplifiedVariants) &&
				sameList(stored.TraditionalVariants, incoming.TraditionalVariants) &&
				samePointer(stored.IsVerified, incoming.IsVerified) &&
				samePointer(stored.StrokeCount, incoming.StrokeCount)
		},
	}
}
