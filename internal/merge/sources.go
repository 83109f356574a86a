package merge

import (
	"context"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/corpora"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const queryCurrentRows = "is_current = ?"

// sources holds every corpus's current rows keyed by character.
type sources struct {
	dictionary   map[string]corpora.DictionaryRow
	unihan       map[string]corpora.UnihanRow
	makeMeAHanzi map[string]corpora.MakeMeAHanziRow
	animCJK      map[string]corpora.AnimCJKRow
	cedict       map[string][]corpora.CEDICTRow
	subtlex      map[string]corpora.SUBTLEXRow
	junda        map[string]corpora.JundaRow
	baxterSagart map[string][]corpora.BaxterSagartRow
	zhengzhang   map[string][]corpora.ZhengzhangRow
	shuowen      map[string]corpora.ShuowenRow

	// stamps tracks the earliest created_at and latest updated_at of the rows behind each character.
	stamps map[string]stamp
}

type stamp struct {
	createdAt time.Time
	updatedAt time.Time
}

func (s *sources) touch(character string, meta snapshots.Meta) {
	current, ok := s.stamps[character]
	if !ok {
		s.stamps[character] = stamp{createdAt: meta.CreatedAt, updatedAt: meta.UpdatedAt}
		return
	}
	if meta.CreatedAt.Before(current.createdAt) {
		current.createdAt = meta.CreatedAt
	}
	if meta.UpdatedAt.After(current.updatedAt) {
		current.updatedAt = meta.UpdatedAt
	}
	s.stamps[character] = current
}

// universe returns every character that any current snapshot row contributes to.
func (s *sources) universe() []string {
	keys := make([]string, 0, len(s.stamps))
	for character := range s.stamps {
		keys = append(keys, character)
	}
	return keys
}

type loadedRows struct {
	dictionary   []corpora.DictionaryRow
	unihan       []corpora.UnihanRow
	makeMeAHanzi []corpora.MakeMeAHanziRow
	animCJK      []corpora.AnimCJKRow
	cedict       []corpora.CEDICTRow
	subtlex      []corpora.SUBTLEXRow
	junda        []corpora.JundaRow
	baxterSagart []corpora.BaxterSagartRow
	zhengzhang   []corpora.ZhengzhangRow
	shuowen      []corpora.ShuowenRow
}

// loadSources reads the current rows of every corpus, one query per corpus in parallel,
// each ordered by row_key.
func loadSources(ctx context.Context, db *gorm.DB) (*sources, error) {
	var rows loadedRows
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.dictionary) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.unihan) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.makeMeAHanzi) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.animCJK) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.cedict) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.subtlex) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.junda) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.baxterSagart) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.zhengzhang) })
	group.Go(func() error { return loadCurrent(groupCtx, db, &rows.shuowen) })
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return indexSources(rows), nil
}

func loadCurrent[R any](ctx context.Context, db *gorm.DB, target *[]R) error {
	return db.WithContext(ctx).Where(queryCurrentRows, true).Order("row_key").Find(target).Error
}

func indexSources(rows loadedRows) *sources {
	s := &sources{
		dictionary:   make(map[string]corpora.DictionaryRow, len(rows.dictionary)),
		unihan:       make(map[string]corpora.UnihanRow, len(rows.unihan)),
		makeMeAHanzi: make(map[string]corpora.MakeMeAHanziRow, len(rows.makeMeAHanzi)),
		animCJK:      make(map[string]corpora.AnimCJKRow, len(rows.animCJK)),
		cedict:       make(map[string][]corpora.CEDICTRow),
		subtlex:      make(map[string]corpora.SUBTLEXRow, len(rows.subtlex)),
		junda:        make(map[string]corpora.JundaRow, len(rows.junda)),
		baxterSagart: make(map[string][]corpora.BaxterSagartRow),
		zhengzhang:   make(map[string][]corpora.ZhengzhangRow),
		shuowen:      make(map[string]corpora.ShuowenRow, len(rows.shuowen)),
		stamps:       make(map[string]stamp),
	}
	for _, row := range rows.dictionary {
		s.dictionary[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	for _, row := range rows.unihan {
		character, ok := row.Character()
		if !ok {
			continue
		}
		s.unihan[character] = row
		s.touch(character, row.Meta)
	}
	for _, row := range rows.makeMeAHanzi {
		s.makeMeAHanzi[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	for _, row := range rows.animCJK {
		s.animCJK[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	for _, row := range rows.cedict {
		if !characters.IsSingleCharacter(row.Traditional) || !characters.IsSingleCharacter(row.Simplified) {
			continue
		}
		s.cedict[row.Traditional] = append(s.cedict[row.Traditional], row)
		s.touch(row.Traditional, row.Meta)
		if row.Simplified != row.Traditional {
			s.cedict[row.Simplified] = append(s.cedict[row.Simplified], row)
			s.touch(row.Simplified, row.Meta)
		}
	}
	for _, row := range rows.subtlex {
		s.subtlex[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	for _, row := range rows.junda {
		s.junda[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	for _, row := range rows.baxterSagart {
		s.baxterSagart[row.Character] = append(s.baxterSagart[row.Character], row)
		s.touch(row.Character, row.Meta)
	}
	for _, row := range rows.zhengzhang {
		s.zhengzhang[row.Character] = append(s.zhengzhang[row.Character], row)
		s.touch(row.Character, row.Meta)
	}
	for _, row := range rows.shuowen {
		s.shuowen[row.Key] = row
		s.touch(row.Key, row.Meta)
	}
	return s
}
