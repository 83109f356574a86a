package characters

import (
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

// TableName is the live canonical table the merge engine swaps into place.
const TableName = "characters"

// Component is one element of a character's decomposition as curated by editors.
type Component struct {
	Character string   `json:"character"`
	Type      []string `json:"type,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// HistoricalPronunciation is one reconstructed reading, tagged with the corpus that supplied it.
type HistoricalPronunciation struct {
	Source        string `json:"source"`
	Pinyin        string `json:"pinyin,omitempty"`
	MiddleChinese string `json:"middleChinese,omitempty"`
	OldChinese    string `json:"oldChinese,omitempty"`
	Gloss         string `json:"gloss,omitempty"`
}

// Character is the canonical merged record of one character, rebuilt wholesale by the merge engine.
type Character struct {
	Hanzi     string `gorm:"column:hanzi;primaryKey;size:16;not null" json:"character"`
	Codepoint string `gorm:"column:codepoint;size:12;not null" json:"codepoint"`

	Gloss               *string                        `gorm:"column:gloss" json:"gloss"`
	Hint                *string                        `gorm:"column:hint" json:"hint"`
	OriginalMeaning     *string                        `gorm:"column:original_meaning" json:"originalMeaning"`
	Pinyin              datatypes.JSONSlice[string]    `gorm:"column:pinyin" json:"pinyin"`
	Components          datatypes.JSONSlice[Component] `gorm:"column:components" json:"components"`
	VariantOf           *string                        `gorm:"column:variant_of;size:16" json:"variantOf"`
	SimplifiedVariants  datatypes.JSONSlice[string]    `gorm:"column:simplified_variants" json:"simplifiedVariants"`
	TraditionalVariants datatypes.JSONSlice[string]    `gorm:"column:traditional_variants" json:"traditionalVariants"`
	IsVerified          bool                           `gorm:"column:is_verified;not null" json:"isVerified"`

	StrokeCount              *int                                         `gorm:"column:stroke_count" json:"strokeCount"`
	Strokes                  datatypes.JSONSlice[string]                  `gorm:"column:strokes" json:"strokes"`
	Medians                  datatypes.JSONSlice[[][]int]                 `gorm:"column:medians" json:"medians"`
	Radical                  *string                                      `gorm:"column:radical;size:16" json:"radical"`
	Decomposition            *string                                      `gorm:"column:decomposition" json:"decomposition"`
	EtymologyType            *string                                      `gorm:"column:etymology_type;size:32" json:"etymologyType"`
	EtymologyPhonetic        *string                                      `gorm:"column:etymology_phonetic;size:16" json:"etymologyPhonetic"`
	EtymologySemantic        *string                                      `gorm:"column:etymology_semantic;size:16" json:"etymologySemantic"`
	ShuowenExplanation       *string                                      `gorm:"column:shuowen_explanation" json:"shuowenExplanation"`
	SubtlexRank              *int                                         `gorm:"column:subtlex_rank" json:"subtlexRank"`
	SubtlexCount             *int                                         `gorm:"column:subtlex_count" json:"subtlexCount"`
	JundaRank                *int                                         `gorm:"column:junda_rank" json:"jundaRank"`
	HistoricalPronunciations datatypes.JSONSlice[HistoricalPronunciation] `gorm:"column:historical_pronunciations" json:"historicalPronunciations"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Character) TableName() string {
	return TableName
}

// IsSingleCharacter reports whether value holds exactly one Unicode code point.
func IsSingleCharacter(value string) bool {
	return value != "" && utf8.RuneCountInString(value) == 1
}

// Codepoint renders the U+XXXX label of a single-character string.
func Codepoint(character string) string {
	r, _ := utf8.DecodeRuneInString(character)
	return fmt.Sprintf("U+%04X", r)
}
