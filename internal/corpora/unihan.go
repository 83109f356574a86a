package corpora

import (
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/datatypes"
)

// UnihanRow is one Unihan database record, keyed by codepoint.
type UnihanRow struct {
	Key                 string                      `gorm:"column:row_key;primaryKey;size:12" json:"-"`
	Codepoint           string                      `gorm:"column:codepoint;size:12;not null" json:"codepoint"`
	Definition          *string                     `gorm:"column:definition" json:"definition"`
	Mandarin            datatypes.JSONSlice[string] `gorm:"column:mandarin" json:"mandarin"`
	TotalStrokes        *int                        `gorm:"column:total_strokes" json:"totalStrokes"`
	SimplifiedVariants  datatypes.JSONSlice[string] `gorm:"column:simplified_variants" json:"simplifiedVariants"`
	TraditionalVariants datatypes.JSONSlice[string] `gorm:"column:traditional_variants" json:"traditionalVariants"`
	RadicalStroke       *string                     `gorm:"column:radical_stroke;size:32" json:"radicalStroke"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (UnihanRow) TableName() string {
	return "src_unihan"
}

// RowKey returns the natural key.
func (row UnihanRow) RowKey() string {
	return row.Key
}

// Character converts the codepoint key to its character.
func (row UnihanRow) Character() (string, bool) {
	return CodepointCharacter(row.Key)
}

func unihanCorpus() snapshots.Corpus[UnihanRow] {
	return snapshots.Corpus[UnihanRow]{
		Name: Unihan,
		Parse: ndjsonParser(func(row *UnihanRow) error {
			codepoint, err := NormalizeCodepoint(row.Codepoint)
			if err != nil {
				return err
			}
			if _, ok := CodepointCharacter(codepoint); !ok {
				return errMissingCharacter
			}
			row.Codepoint = codepoint
			row.Key = codepoint
			row.Definition = trimOptional(row.Definition)
			row.RadicalStroke = trimOptional(row.RadicalStroke)
			row.Mandarin = trimList(row.Mandarin)
			row.SimplifiedVariants = trimList(row.SimplifiedVariants)
			row.TraditionalVariants = trimList(row.TraditionalVariants)
			return nil
		}),
		SamePayload: func(stored, incoming *UnihanRow) bool {
			return samePointer(stored.Definition, incoming.Definition) &&
				sameList(stored.Mandarin, incoming.Mandarin) &&
				samePointer(stored.TotalStrokes, incoming.TotalStrokes) &&
				sameList(stored.SimplifiedVariants, incoming.SimplifiedVariants) &&
				sameList(stored.TraditionalVariants, incoming.TraditionalVariants) &&
				samePointer(stored.RadicalStroke, incoming.RadicalStroke)
		},
	}
}
