package highscorehandlers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	highscoreservice "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/application"
	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/handlerwrapper"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const testLedger = "test-ledger"

type testPlayer struct {
	id    identity.Identity
	token string
}

func newTestPlayer(t *testing.T) testPlayer {
	t.Helper()
	kp, err := nkeys.CreateUser()
	require.NoError(t, err)
	id, err := identity.FromKeyPair(kp)
	require.NoError(t, err)
	token, err := identity.IssueToken(kp, testLedger, time.Minute)
	require.NoError(t, err)
	return testPlayer{id: id, token: token}
}

func newTestHandlers(svc *FakeHighscoreService) Handlers {
	return NewHighscoreHandlers(
		svc,
		identity.NewVerifier(testLedger, time.Hour),
		slog.Default(),
		noop.NewTracerProvider().Tracer("test"),
	)
}

func TestHandleRecordCreateRequested(t *testing.T) {
	player := newTestPlayer(t)

	tests := []struct {
		name         string
		setupService func(*FakeHighscoreService)
		token        string
		wantTopic    string
		wantCode     highscoreevents.FailureCode
		wantErr      bool
		wantTrace    []string
	}{
		{
			name:         "happy path - record created",
			setupService: func(f *FakeHighscoreService) {},
			token:        player.token,
			wantTopic:    highscoreevents.RecordCreatedV1,
			wantTrace:    []string{"CreateRecord"},
		},
		{
			name:         "bad token never reaches the service",
			setupService: func(f *FakeHighscoreService) {},
			token:        "garbage",
			wantTopic:    highscoreevents.RecordCreateFailedV1,
			wantCode:     highscoreevents.CodeUnauthenticated,
			wantTrace:    []string{},
		},
		{
			name: "record already exists",
			setupService: func(f *FakeHighscoreService) {
				f.CreateRecordFunc = func(ctx context.Context, caller identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return nil, highscoreservice.ErrAlreadyExists
				}
			},
			token:     player.token,
			wantTopic: highscoreevents.RecordCreateFailedV1,
			wantCode:  highscoreevents.CodeAlreadyExists,
			wantTrace: []string{"CreateRecord"},
		},
		{
			name: "infrastructure error is returned for redelivery",
			setupService: func(f *FakeHighscoreService) {
				f.CreateRecordFunc = func(ctx context.Context, caller identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return nil, errors.New("database error")
				}
			},
			token:     player.token,
			wantErr:   true,
			wantTrace: []string{"CreateRecord"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeService := NewFakeHighscoreService()
			tt.setupService(fakeService)

			results, err := newTestHandlers(fakeService).HandleRecordCreateRequested(
				context.Background(),
				&highscoreevents.RecordCreateRequestedPayloadV1{Token: tt.token},
			)

			assert.Equal(t, tt.wantTrace, fakeService.Trace())

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, results)
				return
			}

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)

			switch p := results[0].Payload.(type) {
			case *highscoreevents.RecordCreatedPayloadV1:
				assert.Equal(t, player.id, p.Record.Owner)
				assert.Equal(t, uint32(0), p.Record.Score)
			case *highscoreevents.RecordCreateFailedPayloadV1:
				assert.Equal(t, tt.wantCode, p.Code)
				assert.NotEmpty(t, p.Reason)
			default:
				t.Fatalf("unexpected payload type %T", p)
			}
		})
	}
}

func TestHandleScoreSubmitRequested(t *testing.T) {
	owner := newTestPlayer(t)
	other := newTestPlayer(t)

	tests := []struct {
		name         string
		setupService func(*FakeHighscoreService)
		payload      *highscoreevents.ScoreSubmitRequestedPayloadV1
		wantTopic    string
		wantCode     highscoreevents.FailureCode
		wantRaised   bool
		wantErr      bool
	}{
		{
			name: "score raised",
			setupService: func(f *FakeHighscoreService) {
				f.SubmitScoreFunc = func(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error) {
					return &highscoreservice.SubmitResult{
						Record:   highscoreservice.ScoreRecordView{Owner: player, Score: candidate},
						Previous: 10,
						Raised:   true,
					}, nil
				}
			},
			payload:    &highscoreevents.ScoreSubmitRequestedPayloadV1{Token: owner.token, Player: owner.id, Score: 50},
			wantTopic:  highscoreevents.ScoreSubmittedV1,
			wantRaised: true,
		},
		{
			name: "caller is not the owner",
			setupService: func(f *FakeHighscoreService) {
				f.SubmitScoreFunc = func(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error) {
					if caller != player {
						return nil, highscoreservice.ErrUnauthorized
					}
					return nil, errors.New("unexpected")
				}
			},
			payload:   &highscoreevents.ScoreSubmitRequestedPayloadV1{Token: other.token, Player: owner.id, Score: 50},
			wantTopic: highscoreevents.ScoreSubmitFailedV1,
			wantCode:  highscoreevents.CodeUnauthorized,
		},
		{
			name: "record missing",
			setupService: func(f *FakeHighscoreService) {
				f.SubmitScoreFunc = func(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error) {
					return nil, highscoreservice.ErrNotFound
				}
			},
			payload:   &highscoreevents.ScoreSubmitRequestedPayloadV1{Token: owner.token, Player: owner.id, Score: 1},
			wantTopic: highscoreevents.ScoreSubmitFailedV1,
			wantCode:  highscoreevents.CodeNotFound,
		},
		{
			name:         "bad token",
			setupService: func(f *FakeHighscoreService) {},
			payload:      &highscoreevents.ScoreSubmitRequestedPayloadV1{Token: "", Player: owner.id, Score: 1},
			wantTopic:    highscoreevents.ScoreSubmitFailedV1,
			wantCode:     highscoreevents.CodeUnauthenticated,
		},
		{
			name: "service error",
			setupService: func(f *FakeHighscoreService) {
				f.SubmitScoreFunc = func(ctx context.Context, caller, player identity.Identity, candidate uint32) (*highscoreservice.SubmitResult, error) {
					return nil, errors.New("connection refused")
				}
			},
			payload: &highscoreevents.ScoreSubmitRequestedPayloadV1{Token: owner.token, Player: owner.id, Score: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeService := NewFakeHighscoreService()
			tt.setupService(fakeService)

			results, err := newTestHandlers(fakeService).HandleScoreSubmitRequested(context.Background(), tt.payload)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)

			switch p := results[0].Payload.(type) {
			case *highscoreevents.ScoreSubmittedPayloadV1:
				assert.Equal(t, tt.wantRaised, p.Raised)
				assert.Equal(t, tt.payload.Score, p.Record.Score)
			case *highscoreevents.ScoreSubmitFailedPayloadV1:
				assert.Equal(t, tt.wantCode, p.Code)
				assert.Equal(t, tt.payload.Player, p.Player)
				assert.Equal(t, tt.payload.Score, p.Score)
			default:
				t.Fatalf("unexpected payload type %T", p)
			}
		})
	}
}

func TestHandleRecordRetrieveRequested(t *testing.T) {
	player := newTestPlayer(t)

	tests := []struct {
		name         string
		setupService func(*FakeHighscoreService)
		replyTo      string
		wantTopic    string
		wantErr      bool
	}{
		{
			name: "found",
			setupService: func(f *FakeHighscoreService) {
				f.GetRecordFunc = func(ctx context.Context, p identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return &highscoreservice.ScoreRecordView{Owner: p, Score: 42}, nil
				}
			},
			wantTopic: highscoreevents.RecordRetrievedV1,
		},
		{
			name: "found with reply subject",
			setupService: func(f *FakeHighscoreService) {
				f.GetRecordFunc = func(ctx context.Context, p identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return &highscoreservice.ScoreRecordView{Owner: p, Score: 42}, nil
				}
			},
			replyTo:   "_INBOX.abc",
			wantTopic: "_INBOX.abc",
		},
		{
			name: "not found",
			setupService: func(f *FakeHighscoreService) {
				f.GetRecordFunc = func(ctx context.Context, p identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return nil, highscoreservice.ErrNotFound
				}
			},
			wantTopic: highscoreevents.RecordRetrieveFailedV1,
		},
		{
			name: "service error",
			setupService: func(f *FakeHighscoreService) {
				f.GetRecordFunc = func(ctx context.Context, p identity.Identity) (*highscoreservice.ScoreRecordView, error) {
					return nil, errors.New("timeout")
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeService := NewFakeHighscoreService()
			tt.setupService(fakeService)

			ctx := context.Background()
			if tt.replyTo != "" {
				ctx = context.WithValue(ctx, handlerwrapper.CtxKeyReplyTo, tt.replyTo)
			}

			results, err := newTestHandlers(fakeService).HandleRecordRetrieveRequested(ctx,
				&highscoreevents.RecordRetrieveRequestedPayloadV1{Player: player.id})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)
			assert.Equal(t, []string{"GetRecord"}, fakeService.Trace())
		})
	}
}

func TestFailureCode(t *testing.T) {
	tests := []struct {
		err    error
		want   highscoreevents.FailureCode
		wantOK bool
	}{
		{err: highscoreservice.ErrAlreadyExists, want: highscoreevents.CodeAlreadyExists, wantOK: true},
		{err: highscoreservice.ErrNotFound, want: highscoreevents.CodeNotFound, wantOK: true},
		{err: highscoreservice.ErrUnauthorized, want: highscoreevents.CodeUnauthorized, wantOK: true},
		{err: identity.ErrInvalidIdentity, want: highscoreevents.CodeInvalidIdentity, wantOK: true},
		{err: identity.ErrUnauthenticated, want: highscoreevents.CodeUnauthenticated, wantOK: true},
		{err: errors.New("other"), wantOK: false},
	}

	for _, tt := range tests {
		got, ok := failureCode(tt.err)
		assert.Equal(t, tt.wantOK, ok, tt.err)
		assert.Equal(t, tt.want, got, tt.err)
	}
}

func TestRejectUndecodable(t *testing.T) {
	decodeErr := errors.New("json: cannot unmarshal number 4294967296 into Go struct field .score of type uint32")

	tests := []struct {
		name      string
		topic     string
		replyTo   string
		wantTopic string
	}{
		{name: "create", topic: highscoreevents.RecordCreateRequestedV1, wantTopic: highscoreevents.RecordCreateFailedV1},
		{name: "submit", topic: highscoreevents.ScoreSubmitRequestedV1, wantTopic: highscoreevents.ScoreSubmitFailedV1},
		{name: "retrieve", topic: highscoreevents.RecordRetrieveRequestedV1, wantTopic: highscoreevents.RecordRetrieveFailedV1},
		{name: "retrieve with reply subject", topic: highscoreevents.RecordRetrieveRequestedV1, replyTo: "_INBOX.xyz", wantTopic: "_INBOX.xyz"},
		{name: "unknown topic", topic: "other.topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.replyTo != "" {
				ctx = context.WithValue(ctx, handlerwrapper.CtxKeyReplyTo, tt.replyTo)
			}

			results := RejectUndecodable(tt.topic)(ctx, decodeErr)
			if tt.wantTopic == "" {
				assert.Empty(t, results)
				return
			}

			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)
			switch p := results[0].Payload.(type) {
			case *highscoreevents.RecordCreateFailedPayloadV1:
				assert.Equal(t, highscoreevents.CodeInvalidPayload, p.Code)
				assert.Equal(t, decodeErr.Error(), p.Reason)
			case *highscoreevents.ScoreSubmitFailedPayloadV1:
				assert.Equal(t, highscoreevents.CodeInvalidPayload, p.Code)
				assert.Equal(t, decodeErr.Error(), p.Reason)
			case *highscoreevents.RecordRetrieveFailedPayloadV1:
				assert.Equal(t, highscoreevents.CodeInvalidPayload, p.Code)
				assert.Equal(t, decodeErr.Error(), p.Reason)
			default:
				t.Fatalf("unexpected payload %T", p)
			}
		})
	}
}
