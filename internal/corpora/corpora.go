// Package corpora holds the fixed catalogue of external character corpora: their snapshot
// row models, NDJSON parsers and payload-equality predicates.
package corpora

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
)

// Corpus names, also used as sync ledger keys.
const (
	Dictionary   = "dictionary"
	Unihan       = "unihan"
	MakeMeAHanzi = "makemeahanzi"
	AnimCJK      = "animcjk"
	CEDICT       = "cedict"
	SUBTLEX      = "subtlex"
	Junda        = "junda"
	BaxterSagart = "baxter_sagart"
	Zhengzhang   = "zhengzhang"
	Shuowen      = "shuowen"
)

const keySeparator = "|"

var (
	errMissingCharacter = errors.New("a single character is required")
	errMissingField     = errors.New("required field is empty")

	codepointPattern = regexp.MustCompile(`^U\+[0-9A-F]{4,6}$`)
)

// Names lists every corpus in catalogue order.
func Names() []string {
	return []string{Dictionary, Unihan, MakeMeAHanzi, AnimCJK, CEDICT, SUBTLEX, Junda, BaxterSagart, Zhengzhang, Shuowen}
}

// Models returns one zero value of every corpus row model, for schema migration.
func Models() []any {
	return []any{
		&DictionaryRow{},
		&UnihanRow{},
		&MakeMeAHanziRow{},
		&AnimCJKRow{},
		&CEDICTRow{},
		&SUBTLEXRow{},
		&JundaRow{},
		&BaxterSagartRow{},
		&ZhengzhangRow{},
		&ShuowenRow{},
	}
}

// TableOf returns the snapshot table that stores the named corpus.
func TableOf(name string) (string, bool) {
	for index, model := range Models() {
		if Names()[index] == name {
			return model.(interface{ TableName() string }).TableName(), true
		}
	}
	return "", false
}

// Syncers builds one ingester per corpus, keyed by corpus name.
func Syncers(cfg snapshots.IngesterConfig) (map[string]snapshots.Syncer, error) {
	builders := []func(snapshots.IngesterConfig) (snapshots.Syncer, error){
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[DictionaryRow](cfg, dictionaryCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[UnihanRow](cfg, unihanCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[MakeMeAHanziRow](cfg, makeMeAHanziCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[AnimCJKRow](cfg, animCJKCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[CEDICTRow](cfg, cedictCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[SUBTLEXRow](cfg, subtlexCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[JundaRow](cfg, jundaCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[BaxterSagartRow](cfg, baxterSagartCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[ZhengzhangRow](cfg, zhengzhangCorpus())
		},
		func(cfg snapshots.IngesterConfig) (snapshots.Syncer, error) {
			return snapshots.NewIngester[ShuowenRow](cfg, shuowenCorpus())
		},
	}

	syncers := make(map[string]snapshots.Syncer, len(builders))
	for _, build := range builders {
		syncer, err := build(cfg)
		if err != nil {
			return nil, err
		}
		syncers[syncer.Corpus()] = syncer
	}
	return syncers, nil
}

func ndjsonParser[R any](prepare func(*R) error) func([]byte) ([]R, []snapshots.ParseError, error) {
	return func(raw []byte) ([]R, []snapshots.ParseError, error) {
		return snapshots.DecodeNDJSON(raw, prepare)
	}
}

func requireCharacter(value *string) error {
	*value = strings.TrimSpace(*value)
	if !characters.IsSingleCharacter(*value) {
		return fmt.Errorf("%w: got %q", errMissingCharacter, *value)
	}
	return nil
}

// NormalizeCodepoint canonicalizes a U+XXXX label to upper case with at least four hex digits.
func NormalizeCodepoint(label string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(label))
	if !codepointPattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid codepoint %q", label)
	}
	value, err := strconv.ParseUint(trimmed[2:], 16, 32)
	if err != nil {
		return "", fmt.Errorf("invalid codepoint %q: %w", label, err)
	}
	return fmt.Sprintf("U+%04X", value), nil
}

// CodepointCharacter converts a normalized U+XXXX label to its character. Surrogates and
// values beyond U+10FFFF are not characters.
func CodepointCharacter(label string) (string, bool) {
	value, err := strconv.ParseUint(strings.TrimPrefix(label, "U+"), 16, 32)
	if err != nil || !utf8.ValidRune(rune(value)) {
		return "", false
	}
	return string(rune(value)), true
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func trimList(values []string) []string {
	if values == nil {
		return nil
	}
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	return trimmed
}

func samePointer[T comparable](left, right *T) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}

func sameList[T any](left, right []T) bool {
	if len(left) == 0 && len(right) == 0 {
		return true
	}
	return reflect.DeepEqual(left, right)
}
