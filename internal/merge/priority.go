package merge

import (
	"strings"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
)

const glossSeparator = "; "

// mergeCharacter folds every source's contribution for one character into its canonical record.
//
// Priority, first non-null wins unless noted:
//
//	gloss                  dictionary, cedict (definitions joined), unihan, makemeahanzi
//	hint                   dictionary, makemeahanzi etymology hint
//	originalMeaning        dictionary
//	pinyin                 dictionary, cedict readings, unihan, makemeahanzi
//	components, variantOf  dictionary
//	isVerified             dictionary, else false
//	*Variants              set union in first-seen order: dictionary, unihan, cedict pairs
//	strokes + medians      makemeahanzi, animcjk (taken together)
//	strokeCount            len(strokes), else unihan, dictionary
//	radical                makemeahanzi, shuowen
//	decomposition, etym.   makemeahanzi
//	shuowenExplanation     shuowen
//	subtlex*, jundaRank    subtlex, junda
//	historical readings    baxter_sagart then zhengzhang, each tagged with its source
func mergeCharacter(character string, s *sources) characters.Character {
	dictionary, hasDictionary := s.dictionary[character]
	unihan, hasUnihan := s.unihan[character]
	makeMeAHanzi, hasMakeMeAHanzi := s.makeMeAHanzi[character]
	animCJK, hasAnimCJK := s.animCJK[character]
	cedictRows := s.cedict[character]
	shuowen, hasShuowen := s.shuowen[character]

	record := characters.Character{
		Hanzi:     character,
		Codepoint: characters.Codepoint(character),
	}

	record.Gloss = firstText(
		when(hasDictionary, dictionary.Gloss),
		cedictGloss(cedictRows),
		when(hasUnihan, unihan.Definition),
		when(hasMakeMeAHanzi, makeMeAHanzi.Definition),
	)
	if hasMakeMeAHanzi {
		etymology := makeMeAHanzi.Etymology.Data()
		record.Hint = firstText(when(hasDictionary, dictionary.Hint), optional(etymology.Hint))
		record.EtymologyType = optional(etymology.Type)
		record.EtymologyPhonetic = optional(etymology.Phonetic)
		record.EtymologySemantic = optional(etymology.Semantic)
		record.Decomposition = makeMeAHanzi.Decomposition
	} else if hasDictionary {
		record.Hint = dictionary.Hint
	}

	if hasDictionary {
		record.OriginalMeaning = dictionary.OriginalMeaning
		if len(dictionary.Components) > 0 {
			record.Components = dictionary.Components
		}
		record.VariantOf = dictionary.VariantOf
		record.IsVerified = dictionary.IsVerified != nil && *dictionary.IsVerified
	}

	record.Pinyin = firstList(
		when(hasDictionary, []string(dictionary.Pinyin)),
		cedictReadings(cedictRows),
		when(hasUnihan, []string(unihan.Mandarin)),
		when(hasMakeMeAHanzi, []string(makeMeAHanzi.Pinyin)),
	)

	simplified := newOrderedSet(character)
	traditional := newOrderedSet(character)
	if hasDictionary {
		simplified.add(dictionary.SimplifiedVariants...)
		traditional.add(dictionary.TraditionalVariants...)
	}
	if hasUnihan {
		simplified.add(unihanVariants(unihan.SimplifiedVariants)...)
		traditional.add(unihanVariants(unihan.TraditionalVariants)...)
	}
	for _, row := range cedictRows {
		if row.Traditional == character {
			simplified.add(row.Simplified)
		}
		if row.Simplified == character {
			traditional.add(row.Traditional)
		}
	}
	record.SimplifiedVariants = simplified.list()
	record.TraditionalVariants = traditional.list()

	switch {
	case hasMakeMeAHanzi && len(makeMeAHanzi.Strokes) > 0:
		record.Strokes = makeMeAHanzi.Strokes
		record.Medians = makeMeAHanzi.Medians
	case hasAnimCJK && len(animCJK.Strokes) > 0:
		record.Strokes = animCJK.Strokes
		record.Medians = animCJK.Medians
	}
	if len(record.Strokes) > 0 {
		count := len(record.Strokes)
		record.StrokeCount = &count
	} else {
		record.StrokeCount = firstInt(when(hasUnihan, unihan.TotalStrokes), when(hasDictionary, dictionary.StrokeCount))
	}

	record.Radical = firstText(when(hasMakeMeAHanzi, makeMeAHanzi.Radical), when(hasShuowen, shuowen.Radical))
	if hasShuowen {
		record.ShuowenExplanation = shuowen.Explanation
	}
	if row, ok := s.subtlex[character]; ok {
		record.SubtlexRank = intPointer(row.Rank)
		record.SubtlexCount = intPointer(row.Count)
	}
	if row, ok := s.junda[character]; ok {
		record.JundaRank = intPointer(row.Rank)
	}

	record.HistoricalPronunciations = historicalPronunciations(s.baxterSagart[character], s.zhengzhang[character])

	if stamps, ok := s.stamps[character]; ok {
		record.CreatedAt = stamps.createdAt.UTC()
		record.UpdatedAt = stamps.updatedAt.UTC()
	}
	return record
}

func cedictGloss(rows []corpora.CEDICTRow) *string {
	definitions := make([]string, 0, len(rows))
	for _, row := range rows {
		definitions = append(definitions, row.Definitions...)
	}
	if len(definitions) == 0 {
		return nil
	}
	return optional(strings.Join(definitions, glossSeparator))
}

func cedictReadings(rows []corpora.CEDICTRow) []string {
	readings := newOrderedSet("")
	for _, row := range rows {
		readings.add(row.Pinyin)
	}
	return readings.list()
}

func unihanVariants(values []string) []string {
	converted := make([]string, 0, len(values))
	for _, value := range values {
		if codepoint, err := corpora.NormalizeCodepoint(value); err == nil {
			if character, ok := corpora.CodepointCharacter(codepoint); ok {
				converted = append(converted, character)
			}
			continue
		}
		converted = append(converted, value)
	}
	return converted
}

func historicalPronunciations(baxterSagart []corpora.BaxterSagartRow, zhengzhang []corpora.ZhengzhangRow) []characters.HistoricalPronunciation {
	if len(baxterSagart) == 0 && len(zhengzhang) == 0 {
		return nil
	}
	readings := make([]characters.HistoricalPronunciation, 0, len(baxterSagart)+len(zhengzhang))
	for _, row := range baxterSagart {
		readings = append(readings, characters.HistoricalPronunciation{
			Source:        corpora.BaxterSagart,
			Pinyin:        row.Pinyin,
			MiddleChinese: row.MiddleChinese,
			OldChinese:    row.OldChinese,
			Gloss:         row.Gloss,
		})
	}
	for _, row := range zhengzhang {
		readings = append(readings, characters.HistoricalPronunciation{
			Source:     corpora.Zhengzhang,
			OldChinese: row.OldChinese,
		})
	}
	return readings
}

// when returns value if the source has a row for the character, the zero value otherwise.
func when[T any](present bool, value T) T {
	if present {
		return value
	}
	var zero T
	return zero
}

func firstText(candidates ...*string) *string {
	for _, candidate := range candidates {
		if candidate != nil && *candidate != "" {
			return candidate
		}
	}
	return nil
}

func firstList(candidates ...[]string) []string {
	for _, candidate := range candidates {
		if len(candidate) > 0 {
			return candidate
		}
	}
	return nil
}

func firstInt(candidates ...*int) *int {
	for _, candidate := range candidates {
		if candidate != nil {
			return candidate
		}
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func intPointer(value int) *int {
	return &value
}

type orderedSet struct {
	exclude string
	seen    map[string]struct{}
	values  []string
}

func newOrderedSet(exclude string) *orderedSet {
	return &orderedSet{exclude: exclude, seen: make(map[string]struct{})}
}

func (set *orderedSet) add(values ...string) {
	for _, value := range values {
		if value == "" || value == set.exclude {
			continue
		}
		if _, ok := set.seen[value]; ok {
			continue
		}
		set.seen[value] = struct{}{}
		set.values = append(set.values, value)
	}
}

func (set *orderedSet) list() []string {
	if len(set.values) == 0 {
		return nil
	}
	return set.values
}
