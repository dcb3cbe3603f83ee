package lottery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/template"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTemplates() *template.Set {
	return &template.Set{
		LotteryWinner: template.Message{
			Subject: "you won",
			Body:    "congrats #NAME#, #AMOUNT# #TOKEN# is on its way",
		},
	}
}

type fakeRepo struct {
	entrants []model.LotteryEntrant
	pool     *big.Int
}

func (f *fakeRepo) FindLotteryEntrants(context.Context, decimal.Decimal) ([]model.LotteryEntrant, error) {
	return f.entrants, nil
}

func (f *fakeRepo) LotteryPool(context.Context, decimal.Decimal) (*big.Int, error) {
	return f.pool, nil
}

func (f *fakeRepo) InsertIfAbsent(context.Context, *model.Deposit) (bool, error) { return false, nil }
func (f *fakeRepo) FindUnresolved(context.Context) ([]model.Deposit, error)      { return nil, nil }
func (f *fakeRepo) AssignHandle(context.Context, string, string) (int64, error)  { return 0, nil }
func (f *fakeRepo) FindSettlementCandidates(context.Context, decimal.Decimal) ([]model.Deposit, error) {
	return nil, nil
}
func (f *fakeRepo) MarkSettled(context.Context, []string, string, time.Time) error { return nil }
func (f *fakeRepo) FindPendingAcknowledgments(context.Context) ([]model.Deposit, error) {
	return nil, nil
}
func (f *fakeRepo) MarkAcknowledged(context.Context, string, time.Time) error { return nil }
func (f *fakeRepo) FindPendingNotifications(context.Context) ([]model.Deposit, error) {
	return nil, nil
}
func (f *fakeRepo) MarkNotified(context.Context, string, time.Time) error { return nil }

type fakeSettler struct {
	recipients []string
	amounts    []*big.Int
	err        error
}

func (f *fakeSettler) TokenBalance(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (f *fakeSettler) GasBalance(context.Context) (*big.Int, error)   { return big.NewInt(0), nil }

func (f *fakeSettler) Distribute(_ context.Context, recipients []string, amounts []*big.Int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.recipients = recipients
	f.amounts = amounts
	return "0xlottery", nil
}

type fakeMessenger struct {
	recipient string
	body      string
	err       error
}

func (f *fakeMessenger) Send(_ context.Context, recipient, _, body string) error {
	if f.err != nil {
		return f.err
	}
	f.recipient = recipient
	f.body = body
	return nil
}

func newLottery(repo *fakeRepo, settler *fakeSettler, messenger *fakeMessenger, pickIdx int) *Lottery {
	l := New(repo, settler, messenger, testTemplates(), Config{
		TokenSymbol: "MOON",
		MaxAmount:   decimal.NewFromInt(30),
	}, testLogger())
	l.pick = func(int) (int, error) { return pickIdx, nil }
	return l
}

func TestDrawPaysFullPoolToWinner(t *testing.T) {
	pool, _ := new(big.Int).SetString("45000000000000000000", 10)
	repo := &fakeRepo{
		entrants: []model.LotteryEntrant{
			{Handle: "alice", Address: "0xaaa"},
			{Handle: "bob", Address: "0xbbb"},
		},
		pool: pool,
	}
	settler := &fakeSettler{}
	messenger := &fakeMessenger{}

	result, err := newLottery(repo, settler, messenger, 1).Draw(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "bob", result.Winner.Handle)
	assert.Equal(t, 2, result.Entrants)
	assert.Equal(t, "0xlottery", result.TxHash)
	assert.Equal(t, []string{"0xbbb"}, settler.recipients)
	require.Len(t, settler.amounts, 1)
	assert.Zero(t, settler.amounts[0].Cmp(pool))

	assert.Equal(t, "bob", messenger.recipient)
	assert.Contains(t, messenger.body, "45 MOON")
}

func TestDrawNoEntrantsIsNoop(t *testing.T) {
	settler := &fakeSettler{}
	result, err := newLottery(&fakeRepo{pool: big.NewInt(0)}, settler, &fakeMessenger{}, 0).Draw(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, settler.recipients)
}

func TestDrawPayoutFailureReturnsError(t *testing.T) {
	repo := &fakeRepo{
		entrants: []model.LotteryEntrant{{Handle: "alice", Address: "0xaaa"}},
		pool:     big.NewInt(1),
	}
	settler := &fakeSettler{err: errors.New("tx reverted")}

	_, err := newLottery(repo, settler, &fakeMessenger{}, 0).Draw(context.Background())
	require.Error(t, err)
}

func TestDrawFailedWinnerMessageDoesNotFailDraw(t *testing.T) {
	repo := &fakeRepo{
		entrants: []model.LotteryEntrant{{Handle: "alice", Address: "0xaaa"}},
		pool:     big.NewInt(1),
	}
	messenger := &fakeMessenger{err: errors.New("mailbox full")}

	result, err := newLottery(repo, &fakeSettler{}, messenger, 0).Draw(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "0xlottery", result.TxHash)
}
