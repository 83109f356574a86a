package revisions

import (
	"context"
	"errors"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"gorm.io/gorm"
)

const (
	opViewNew     = "revisions.view.new"
	opViewGet     = "revisions.view.get"
	opViewGetMany = "revisions.view.get_many"

	queryHanzi         = "hanzi = ?"
	queryHanziIn       = "hanzi IN ?"
	queryHanziStatus   = "hanzi = ? AND status = ?"
	queryHanziInStatus = "hanzi IN ? AND status = ?"
	orderLatestCreated = "created_at DESC, id DESC"
	orderHanziLatest   = "hanzi ASC, created_at DESC, id DESC"
)

// EffectiveView reads canonical records with the latest approved revision of each
// character overlaid. It is computed at read time and never stored.
type EffectiveView struct {
	db *gorm.DB
}

// NewEffectiveView constructs an EffectiveView.
func NewEffectiveView(db *gorm.DB) (*EffectiveView, error) {
	if db == nil {
		return nil, svcerr.New(opViewNew, reasonMissingDatabase, errMissingDatabase)
	}
	return &EffectiveView{db: db}, nil
}

// Get returns the effective record of one character.
func (view *EffectiveView) Get(ctx context.Context, character string) (characters.Character, error) {
	record, found, err := effectiveRecord(view.db.WithContext(ctx), character)
	if err != nil {
		return characters.Character{}, svcerr.New(opViewGet, reasonQueryFailed, err)
	}
	if !found {
		return characters.Character{}, svcerr.New(opViewGet, reasonCharacterNotFound, ErrCharacterNotFound)
	}
	return record, nil
}

// GetMany returns the effective records of the requested characters in request order.
// Unknown characters are omitted.
func (view *EffectiveView) GetMany(ctx context.Context, requested []string) ([]characters.Character, error) {
	unique := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, character := range requested {
		if _, ok := seen[character]; ok || character == "" {
			continue
		}
		seen[character] = struct{}{}
		unique = append(unique, character)
	}
	if len(unique) == 0 {
		return []characters.Character{}, nil
	}

	db := view.db.WithContext(ctx)
	var records []characters.Character
	if err := db.Where(queryHanziIn, unique).Find(&records).Error; err != nil {
		return nil, svcerr.New(opViewGetMany, reasonQueryFailed, err)
	}
	var approved []Revision
	if err := db.Where(queryHanziInStatus, unique, StatusApproved).Order(orderHanziLatest).Find(&approved).Error; err != nil {
		return nil, svcerr.New(opViewGetMany, reasonQueryFailed, err)
	}
	latest := make(map[string]characters.Fields, len(approved))
	for _, revision := range approved {
		if _, ok := latest[revision.Character]; !ok {
			latest[revision.Character] = revision.Fields
		}
	}
	byCharacter := make(map[string]characters.Character, len(records))
	for _, record := range records {
		if fields, ok := latest[record.Hanzi]; ok {
			record = characters.Overlay(record, fields)
		}
		byCharacter[record.Hanzi] = record
	}

	ordered := make([]characters.Character, 0, len(byCharacter))
	for _, character := range unique {
		if record, ok := byCharacter[character]; ok {
			ordered = append(ordered, record)
		}
	}
	return ordered, nil
}

// effectiveRecord overlays the latest approved revision on the canonical record inside db,
// which may be a transaction.
func effectiveRecord(db *gorm.DB, character string) (characters.Character, bool, error) {
	var record characters.Character
	err := db.Where(queryHanzi, character).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return characters.Character{}, false, nil
	}
	if err != nil {
		return characters.Character{}, false, err
	}
	latest, found, err := latestApproved(db, character)
	if err != nil {
		return characters.Character{}, false, err
	}
	if found {
		record = characters.Overlay(record, latest.Fields)
	}
	return record, true, nil
}

func latestApproved(db *gorm.DB, character string) (Revision, bool, error) {
	var revision Revision
	err := db.Where(queryHanziStatus, character, StatusApproved).Order(orderLatestCreated).Take(&revision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Revision{}, false, nil
	}
	if err != nil {
		return Revision{}, false, err
	}
	return revision, true, nil
}
