package highscorehandlers

import (
	"context"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// ------------------------
// Fake Highscore Service
// ------------------------

type FakeHighscoreService struct {
	trace []string

	CreateRecordFunc    func(ctx context.Context, caller identity.Identity) (*highscoreservice.ScoreRecordView, error)
	SubmitScoreFunc     func(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error)
	GetRecordFunc       func(ctx context.Context, player identity.Identity) (*highscoreservice.ScoreRecordView, error)
	ListTopRecordsFunc  func(ctx context.Context, limit int) ([]highscoreservice.ScoreRecordView, error)
	GetScoreHistoryFunc func(ctx context.Context, player identity.Identity) ([]highscoreservice.ScoreRaiseView, error)
}

func NewFakeHighscoreService() *FakeHighscoreService {
	return &FakeHighscoreService{
		trace: []string{},
	}
}

func (f *FakeHighscoreService) record(step string) {
	f.trace = append(f.trace, step)
}

// --- Service Interface Implementation ---

func (f *FakeHighscoreService) CreateRecord(ctx context.Context, caller identity.Identity) (*highscoreservice.ScoreRecordView, error) {
	f.record("CreateRecord")
	if f.CreateRecordFunc != nil {
		return f.CreateRecordFunc(ctx, caller)
	}
	return &highscoreservice.ScoreRecordView{Owner: caller, Address: f.AddressOf(caller)}, nil
}

func (f *FakeHighscoreService) SubmitScore(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error) {
	f.record("SubmitScore")
	if f.SubmitScoreFunc != nil {
		return f.SubmitScoreFunc(ctx, caller, player, candidate)
	}
	return nil, nil
}

func (f *FakeHighscoreService) GetRecord(ctx context.Context, player identity.Identity) (*highscoreservice.ScoreRecordView, error) {
	f.record("GetRecord")
	if f.GetRecordFunc != nil {
		return f.GetRecordFunc(ctx, player)
	}
	return nil, nil
}

func (f *FakeHighscoreService) ListTopRecords(ctx context.Context, limit int) ([]highscoreservice.ScoreRecordView, error) {
	f.record("ListTopRecords")
	if f.ListTopRecordsFunc != nil {
		return f.ListTopRecordsFunc(ctx, limit)
	}
	return nil, nil
}

func (f *FakeHighscoreService) GetScoreHistory(ctx context.Context, player identity.Identity) ([]highscoreservice.ScoreRaiseView, error) {
	f.record("GetScoreHistory")
	if f.GetScoreHistoryFunc != nil {
		return f.GetScoreHistoryFunc(ctx, player)
	}
	return nil, nil
}

func (f *FakeHighscoreService) AddressOf(player identity.Identity) identity.Address {
	return identity.DeriveAddress("test-ledger", player)
}

// --- Accessors for assertions ---

func (f *FakeHighscoreService) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

// Ensure the fake actually satisfies the interface
var _ highscoreservice.Service = (*FakeHighscoreService)(nil)
