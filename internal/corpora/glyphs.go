package corpora

import (
	"errors"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"gorm.io/datatypes"
)

var errStrokeMedianMismatch = errors.New("strokes and medians must have the same length")

// Etymology is the makemeahanzi etymology object.
type Etymology struct {
	Type     string `json:"type,omitempty"`
	Hint     string `json:"hint,omitempty"`
	Phonetic string `json:"phonetic,omitempty"`
	Semantic string `json:"semantic,omitempty"`
}

// MakeMeAHanziRow is one makemeahanzi dictionary+graphics record.
type MakeMeAHanziRow struct {
	Key           string                        `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character     string                        `gorm:"column:hanzi;size:16;not null" json:"character"`
	Definition    *string                       `gorm:"column:definition" json:"definition"`
	Pinyin        datatypes.JSONSlice[string]   `gorm:"column:pinyin" json:"pinyin"`
	Decomposition *string                       `gorm:"column:decomposition" json:"decomposition"`
	Radical       *string                       `gorm:"column:radical;size:16" json:"radical"`
	Etymology     datatypes.JSONType[Etymology] `gorm:"column:etymology" json:"etymology"`
	Strokes       datatypes.JSONSlice[string]   `gorm:"column:strokes" json:"strokes"`
	Medians       datatypes.JSONSlice[[][]int]  `gorm:"column:medians" json:"medians"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (MakeMeAHanziRow) TableName() string {
	return "src_makemeahanzi"
}

// RowKey returns the natural key.
func (row MakeMeAHanziRow) RowKey() string {
	return row.Key
}

func makeMeAHanziCorpus() snapshots.Corpus[MakeMeAHanziRow] {
	return snapshots.Corpus[MakeMeAHanziRow]{
		Name: MakeMeAHanzi,
		Parse: ndjsonParser(func(row *MakeMeAHanziRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			if len(row.Medians) > 0 && len(row.Medians) != len(row.Strokes) {
				return errStrokeMedianMismatch
			}
			row.Key = row.Character
			row.Definition = trimOptional(row.Definition)
			row.Decomposition = trimOptional(row.Decomposition)
			row.Radical = trimOptional(row.Radical)
			row.Pinyin = trimList(row.Pinyin)
			return nil
		}),
		SamePayload: func(stored, incoming *MakeMeAHanziRow) bool {
			return samePointer(stored.Definition, incoming.Definition) &&
				sameList(stored.Pinyin, incoming.Pinyin) &&
				samePointer(stored.Decomposition, incoming.Decomposition) &&
				samePointer(stored.Radical, incoming.Radical) &&
				stored.Etymology.Data() == incoming.Etymology.Data() &&
				sameList(stored.Strokes, incoming.Strokes) &&
				sameList(stored.Medians, incoming.Medians)
		},
	}
}

// AnimCJKRow is one AnimCJK stroke-animation record.
type AnimCJKRow struct {
	Key       string                       `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character string                       `gorm:"column:hanzi;size:16;not null" json:"character"`
	Strokes   datatypes.JSONSlice[string]  `gorm:"column:strokes" json:"strokes"`
	Medians   datatypes.JSONSlice[[][]int] `gorm:"column:medians" json:"medians"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (AnimCJKRow) TableName() string {
	return "src_animcjk"
}

// RowKey returns the natural key.
func (row AnimCJKRow) RowKey() string {
	return row.Key
}

func animCJKCorpus() snapshots.Corpus[AnimCJKRow] {
	return snapshots.Corpus[AnimCJKRow]{
		Name: AnimCJK,
		Parse: ndjsonParser(func(row *AnimCJKRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			if len(row.Medians) > 0 && len(row.Medians) != len(row.Strokes) {
				return errStrokeMedianMismatch
			}
			row.Key = row.Character
			return nil
		}),
		SamePayload: func(stored, incoming *AnimCJKRow) bool {
			return sameList(stored.Strokes, incoming.Strokes) &&
				sameList(stored.Medians, incoming.Medians)
		},
	}
}
