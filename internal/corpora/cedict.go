package corpora

import (
	"strings"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/datatypes"
)

// CEDICTRow is one CC-CEDICT entry. Multi-character words are stored but only
// single-character entries contribute to the canonical record.
type CEDICTRow struct {
	Key         string                      `gorm:"column:row_key;primaryKey;size:255" json:"-"`
	Traditional string                      `gorm:"column:traditional;size:64;not null;index" json:"traditional"`
	Simplified  string                      `gorm:"column:simplified;size:64;not null;index" json:"simplified"`
	Pinyin      string                      `gorm:"column:pinyin;size:128;not null" json:"pinyin"`
	Definitions datatypes.JSONSlice[string] `gorm:"column:definitions" json:"definitions"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (CEDICTRow) TableName() string {
	return "src_cedict"
}

// RowKey returns the natural key.
func (row CEDICTRow) RowKey() string {
	return row.Key
}

func cedictCorpus() snapshots.Corpus[CEDICTRow] {
	return snapshots.Corpus[CEDICTRow]{
		Name: CEDICT,
		Parse: ndjsonParser(func(row *CEDICTRow) error {
			row.Traditional = strings.TrimSpace(row.Traditional)
			row.Simplified = strings.TrimSpace(row.Simplified)
			row.Pinyin = strings.Join(strings.Fields(row.Pinyin), " ")
			if row.Traditional == "" || row.Simplified == "" || row.Pinyin == "" {
				return errMissingField
			}
			row.Key = strings.Join([]string{row.Traditional, row.Simplified, row.Pinyin}, keySeparator)
			row.Definitions = trimList(row.Definitions)
			return nil
		}),
		SamePayload: func(stored, incoming *CEDICTRow) bool {
			return sameList(stored.Definitions, incoming.Definitions)
		},
	}
}
