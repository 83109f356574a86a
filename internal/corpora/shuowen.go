package corpora

import "github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"

// ShuowenRow is one Shuowen Jiezi entry.
type ShuowenRow struct {
	Key         string  `gorm:"column:row_key;primaryKey;size:16" json:"-"`
	Character   string  `gorm:"column:hanzi;size:16;not null" json:"character"`
	Explanation *string `gorm:"column:explanation" json:"explanation"`
	Radical     *string `gorm:"column:radical;size:16" json:"radical"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (ShuowenRow) TableName() string {
	return "src_shuowen"
}

// RowKey returns the natural key.
func (row ShuowenRow) RowKey() string {
	return row.Key
}

func shuowenCorpus() snapshots.Corpus[ShuowenRow] {
	return snapshots.Corpus[ShuowenRow]{
		Name: Shuowen,
		Parse: ndjsonParser(func(row *ShuowenRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			row.Key = row.Character
			row.Explanation = trimOptional(row.Explanation)
			row.Radical = trimOptional(row.Radical)
			return nil
		}),
		SamePayload: func(stored, incoming *ShuowenRow) bool {
			return samePointer(stored.Explanation, incoming.Explanation) &&
				samePointer(stored.Radical, incoming.Radical)
		},
	}
}
