package corpora

import (
	"errors"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
)

var errInvalidRank = errors.New("rank must be positive")

// SUBTLEXRow is one SUBTLEX-CH character frequency entry.
type SUBTLEXRow struct {
	Key       string `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character string `gorm:"column:hanzi;size:16;not null" json:"character"`
	Rank      int    `gorm:"column:frequency_rank;not null" json:"rank"`
	Count     int    `gorm:"column:occurrences;not null" json:"count"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (SUBTLEXRow) TableName() string {
	return "src_subtlex"
}

// RowKey returns the natural key.
func (row SUBTLEXRow) RowKey() string {
	return row.Key
}

// JundaRow is one entry of Jun Da's character frequency list.
type JundaRow struct {
	Key       string `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character string `gorm:"column:hanzi;size:16;not null" json:"character"`
	Rank      int    `gorm:"column:frequency_rank;not null" json:"rank"`
	Count     int    `gorm:"column:occurrences;not null" json:"count"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (JundaRow) TableName() string {
	return "src_junda"
}

// RowKey returns the natural key.
func (row JundaRow) RowKey() string {
	return row.Key
}

func subtlexCorpus() snapshots.Corpus[SUBTLEXRow] {
	return snapshots.Corpus[SUBTLEXRow]{
		Name: SUBTLEX,
		Parse: ndjsonParser(func(row *SUBTLEXRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			if row.Rank <= 0 {
				return errInvalidRank
			}
			row.Key = row.Character
			return nil
		}),
		SamePayload: func(stored, incoming *SUBTLEXRow) bool {
			return stored.Rank == incoming.Rank && stored.Count == incoming.Count
		},
	}
}

func jundaCorpus() snapshots.Corpus[JundaRow] {
	return snapshots.Corpus[JundaRow]{
		Name: Junda,
		Parse: ndjsonParser(func(row *JundaRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			if row.Rank <= 0 {
				return errInvalidRank
			}
			row.Key = row.Character
			return nil
		}),
		SamePayload: func(stored, incoming *JundaRow) bool {
			return stored.Rank == incoming.Rank && stored.Count == incoming.Count
		},
	}
}
