package testutils

import (
	"testing"
	"time"

	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/nats-io/nkeys"
)

// Player is a generated player with a signing key and a ready token.
type Player struct {
	KeyPair  nkeys.KeyPair
	Identity identity.Identity
	Token    string
}

// TestDataGenerator provides methods to create test data for integration tests
type TestDataGenerator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewTestDataGenerator creates a new test data generator with optional seed
func NewTestDataGenerator(seed ...int64) *TestDataGenerator {
	var s int64
	if len(seed) > 0 {
		s = seed[0]
	} else {
		s = time.Now().UnixNano()
	}

	return &TestDataGenerator{
		faker: gofakeit.New(uint64(s)),
		seed:  s,
	}
}

// Seed returns the generator seed so failures can be replayed.
func (g *TestDataGenerator) Seed() int64 {
	return g.seed
}

// GeneratePlayers creates count players holding tokens for ledgerID.
func (g *TestDataGenerator) GeneratePlayers(t *testing.T, ledgerID string, count int) []Player {
	t.Helper()
	players := make([]Player, count)
	for i := range players {
		kp, err := nkeys.CreateUser()
		if err != nil {
			t.Fatalf("failed to create key pair: %v", err)
		}
		id, err := identity.FromKeyPair(kp)
		if err != nil {
			t.Fatalf("failed to read identity: %v", err)
		}
		token, err := identity.IssueToken(kp, ledgerID, time.Minute)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		players[i] = Player{KeyPair: kp, Identity: id, Token: token}
	}
	return players
}

// GenerateScores returns count candidate scores. Roughly half are small so
// sequences contain both raises and no-ops.
func (g *TestDataGenerator) GenerateScores(count int) []uint32 {
	scores := make([]uint32, count)
	for i := range scores {
		if g.faker.Bool() {
			scores[i] = uint32(g.faker.IntRange(0, 1000))
		} else {
			scores[i] = g.faker.Uint32()
		}
	}
	return scores
}
