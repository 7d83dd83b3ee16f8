package highscoreservice

import (
	"context"
	"sort"
	"sync"
	"time"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Highscore Repository
// ------------------------

// FakeHighscoreRepository keeps records in memory unless a Func override is set.
type FakeHighscoreRepository struct {
	mu      sync.Mutex
	trace   []string
	records map[string]highscoredb.ScoreRecord
	raises  []highscoredb.ScoreRaise

	CreateFunc       func(ctx context.Context, db bun.IDB, record *highscoredb.ScoreRecord) error
	GetByAddressFunc func(ctx context.Context, db bun.IDB, address string) (*highscoredb.ScoreRecord, error)
	GetForUpdateFunc func(ctx context.Context, db bun.IDB, address string) (*highscoredb.ScoreRecord, error)
	UpdateScoreFunc  func(ctx context.Context, db bun.IDB, address string, score uint32, updatedAt time.Time) error
	InsertRaiseFunc  func(ctx context.Context, db bun.IDB, raise *highscoredb.ScoreRaise) error
	ListTopFunc      func(ctx context.Context, db bun.IDB, ledgerID string, limit int) ([]highscoredb.ScoreRecord, error)
	ListRaisesFunc   func(ctx context.Context, db bun.IDB, address string) ([]highscoredb.ScoreRaise, error)
}

func NewFakeHighscoreRepository() *FakeHighscoreRepository {
	return &FakeHighscoreRepository{
		trace:   []string{},
		records: map[string]highscoredb.ScoreRecord{},
	}
}

func (f *FakeHighscoreRepository) record(step string) {
	f.trace = append(f.trace, step)
}

// --- Repository Interface Implementation ---

func (f *FakeHighscoreRepository) Create(ctx context.Context, db bun.IDB, rec *highscoredb.ScoreRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, db, rec)
	}
	if _, ok := f.records[rec.Address]; ok {
		return highscoredb.ErrAlreadyExists
	}
	f.records[rec.Address] = *rec
	return nil
}

func (f *FakeHighscoreRepository) GetByAddress(ctx context.Context, db bun.IDB, address string) (*highscoredb.ScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetByAddress")
	if f.GetByAddressFunc != nil {
		return f.GetByAddressFunc(ctx, db, address)
	}
	return f.lookup(address)
}

func (f *FakeHighscoreRepository) GetForUpdate(ctx context.Context, db bun.IDB, address string) (*highscoredb.ScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetForUpdate")
	if f.GetForUpdateFunc != nil {
		return f.GetForUpdateFunc(ctx, db, address)
	}
	return f.lookup(address)
}

func (f *FakeHighscoreRepository) UpdateScore(ctx context.Context, db bun.IDB, address string, score uint32, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateScore")
	if f.UpdateScoreFunc != nil {
		return f.UpdateScoreFunc(ctx, db, address, score, updatedAt)
	}
	rec, ok := f.records[address]
	if !ok {
		return highscoredb.ErrNoRowsAffected
	}
	rec.Score = score
	rec.UpdatedAt = updatedAt
	f.records[address] = rec
	return nil
}

func (f *FakeHighscoreRepository) InsertRaise(ctx context.Context, db bun.IDB, raise *highscoredb.ScoreRaise) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertRaise")
	if f.InsertRaiseFunc != nil {
		return f.InsertRaiseFunc(ctx, db, raise)
	}
	raise.ID = int64(len(f.raises) + 1)
	f.raises = append(f.raises, *raise)
	return nil
}

func (f *FakeHighscoreRepository) ListTop(ctx context.Context, db bun.IDB, ledgerID string, limit int) ([]highscoredb.ScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListTop")
	if f.ListTopFunc != nil {
		return f.ListTopFunc(ctx, db, ledgerID, limit)
	}
	var out []highscoredb.ScoreRecord
	for _, rec := range f.records {
		if rec.LedgerID == ledgerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeHighscoreRepository) ListRaises(ctx context.Context, db bun.IDB, address string) ([]highscoredb.ScoreRaise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListRaises")
	if f.ListRaisesFunc != nil {
		return f.ListRaisesFunc(ctx, db, address)
	}
	var out []highscoredb.ScoreRaise
	for _, r := range f.raises {
		if r.Address == address {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeHighscoreRepository) lookup(address string) (*highscoredb.ScoreRecord, error) {
	rec, ok := f.records[address]
	if !ok {
		return nil, highscoredb.ErrNotFound
	}
	return &rec, nil
}

// --- Accessors for assertions ---

func (f *FakeHighscoreRepository) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeHighscoreRepository) Stored(address string) (highscoredb.ScoreRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[address]
	return rec, ok
}

// Ensure the fake actually satisfies the interface
var _ highscoredb.Repository = (*FakeHighscoreRepository)(nil)
