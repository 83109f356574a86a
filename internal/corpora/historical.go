package corpora

import (
	"strings"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
)

// BaxterSagartRow is one Baxter-Sagart Old Chinese reconstruction. A character may have several.
type BaxterSagartRow struct {
	Key           string `gorm:"column:row_key;primaryKey;size:255" json:"-"`
	Character     string `gorm:"column:hanzi;size:16;not null;index" json:"character"`
	Pinyin        string `gorm:"column:pinyin;size:64" json:"pinyin"`
	MiddleChinese string `gorm:"column:middle_chinese;size:64;not null" json:"middleChinese"`
	OldChinese    string `gorm:"column:old_chinese;size:128;not null" json:"oldChinese"`
	Gloss         string `gorm:"column:gloss" json:"gloss"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (BaxterSagartRow) TableName() string {
	return "src_baxter_sagart"
}

// RowKey returns the natural key.
func (row BaxterSagartRow) RowKey() string {
	return row.Key
}

// ZhengzhangRow is one Zhengzhang Shangfang Old Chinese reconstruction.
type ZhengzhangRow struct {
	Key            string `gorm:"column:row_key;primaryKey;size:255" json:"-"`
	Character      string `gorm:"column:hanzi;size:16;not null;index" json:"character"`
	PhoneticSeries string `gorm:"column:phonetic_series;size:16" json:"phoneticSeries"`
	OldChinese     string `gorm:"column:old_chinese;size:128;not null" json:"oldChinese"`
	snapshots.Meta
}

// TableName provides the explicit table binding for GORM.
func (ZhengzhangRow) TableName() string {
	return "src_zhengzhang"
}

// RowKey returns the natural key.
func (row ZhengzhangRow) RowKey() string {
	return row.Key
}

func baxterSagartCorpus() snapshots.Corpus[BaxterSagartRow] {
	return snapshots.Corpus[BaxterSagartRow]{
		Name: BaxterSagart,
		Parse: ndjsonParser(func(row *BaxterSagartRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			row.Pinyin = strings.TrimSpace(row.Pinyin)
			row.MiddleChinese = strings.TrimSpace(row.MiddleChinese)
			row.OldChinese = strings.TrimSpace(row.OldChinese)
			row.Gloss = strings.TrimSpace(row.Gloss)
			if row.MiddleChinese == "" && row.OldChinese == "" {
				return errMissingField
			}
			row.Key = strings.Join([]string{row.Character, row.MiddleChinese, row.OldChinese}, keySeparator)
			return nil
		}),
		SamePayload: func(stored, incoming *BaxterSagartRow) bool {
			return stored.Pinyin == incoming.Pinyin && stored.Gloss == incoming.Gloss
		},
	}
}

func zhengzhangCorpus() snapshots.Corpus[ZhengzhangRow] {
	return snapshots.Corpus[ZhengzhangRow]{
		Name: Zhengzhang,
		Parse: ndjsonParser(func(row *ZhengzhangRow) error {
			if err := requireCharacter(&row.Character); err != nil {
				return err
			}
			row.PhoneticSeries = strings.TrimSpace(row.PhoneticSeries)
			row.OldChinese = strings.TrimSpace(row.OldChinese)
			if row.OldChinese == "" {
				return errMissingField
			}
			row.Key = strings.Join([]string{row.Character, row.OldChinese}, keySeparator)
			return nil
		}),
		SamePayload: func(stored, incoming *ZhengzhangRow) bool {
			return stored.PhoneticSeries == incoming.PhoneticSeries
		},
	}
}
