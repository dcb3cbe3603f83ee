package notifier

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
		DepositFound: template.Message{
			Subject: "deposit received",
			Body:    "hi #NAME#, we received your #AMOUNT# #TOKEN# (tx #SOURCE_TX_HASH#)",
		},
		LotteryEntry: template.Message{
			Subject: "lottery entry",
			Body:    "hi #NAME#, #AMOUNT# #TOKEN# is below the #MINIMUM# minimum so you are in the lottery",
		},
		Settled: template.Message{
			Subject: "tokens sent",
			Body:    "hi #NAME#, #AMOUNT# #TOKEN# was sent in tx #SETTLEMENT_TX_HASH#",
		},
		LotteryWinner: template.Message{
			Subject: "you won",
			Body:    "congrats #NAME#, #AMOUNT# #TOKEN# is yours",
		},
	}
}

type fakeRepo struct {
	pendingAcks    []model.Deposit
	pendingNotices []model.Deposit

	acknowledged []string
	notified     []string
}

func (f *fakeRepo) FindPendingAcknowledgments(context.Context) ([]model.Deposit, error) {
	return f.pendingAcks, nil
}

func (f *fakeRepo) MarkAcknowledged(_ context.Context, txHash string, _ time.Time) error {
	f.acknowledged = append(f.acknowledged, txHash)
	return nil
}

func (f *fakeRepo) FindPendingNotifications(context.Context) ([]model.Deposit, error) {
	return f.pendingNotices, nil
}

func (f *fakeRepo) MarkNotified(_ context.Context, txHash string, _ time.Time) error {
	f.notified = append(f.notified, txHash)
	return nil
}

func (f *fakeRepo) InsertIfAbsent(context.Context, *model.Deposit) (bool, error) { return false, nil }
func (f *fakeRepo) FindUnresolved(context.Context) ([]model.Deposit, error)      { return nil, nil }
func (f *fakeRepo) AssignHandle(context.Context, string, string) (int64, error)  { return 0, nil }
func (f *fakeRepo) FindSettlementCandidates(context.Context, decimal.Decimal) ([]model.Deposit, error) {
	return nil, nil
}
func (f *fakeRepo) MarkSettled(context.Context, []string, string, time.Time) error { return nil }
func (f *fakeRepo) FindLotteryEntrants(context.Context, decimal.Decimal) ([]model.LotteryEntrant, error) {
	return nil, nil
}
func (f *fakeRepo) LotteryPool(context.Context, decimal.Decimal) (*big.Int, error) {
	return big.NewInt(0), nil
}

type sentMessage struct {
	recipient string
	subject   string
	body      string
}

type fakeMessenger struct {
	sent    []sentMessage
	failFor map[string]error
}

func (f *fakeMessenger) Send(_ context.Context, recipient, subject, body string) error {
	if err, ok := f.failFor[recipient]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{recipient, subject, body})
	return nil
}

func resolvedDeposit(hash, handle string, display int64) model.Deposit {
	h := handle
	return model.Deposit{
		SourceTxHash:  hash,
		SourceAddress: "0xaddr-" + handle,
		Handle:        &h,
		RawAmount:     big.NewInt(display),
		DisplayAmount: decimal.NewFromInt(display),
	}
}

func newNotifier(repo *fakeRepo, messenger *fakeMessenger) *Notifier {
	return New(repo, messenger, testTemplates(), Config{
		TokenSymbol:    "MOON",
		MinDeposit:     decimal.NewFromInt(30),
		SendsPerSecond: 1000,
	}, testLogger())
}

func TestRunAcknowledgesAboveMinimum(t *testing.T) {
	repo := &fakeRepo{pendingAcks: []model.Deposit{resolvedDeposit("0x1", "alice", 50)}}
	messenger := &fakeMessenger{}

	require.NoError(t, newNotifier(repo, messenger).Run(context.Background()))

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "alice", messenger.sent[0].recipient)
	assert.Equal(t, "deposit received", messenger.sent[0].subject)
	assert.Contains(t, messenger.sent[0].body, "50 MOON")
	assert.Equal(t, []string{"0x1"}, repo.acknowledged)
}

func TestRunBelowMinimumGetsLotteryEntry(t *testing.T) {
	repo := &fakeRepo{pendingAcks: []model.Deposit{resolvedDeposit("0x1", "bob", 5)}}
	messenger := &fakeMessenger{}

	require.NoError(t, newNotifier(repo, messenger).Run(context.Background()))

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "lottery entry", messenger.sent[0].subject)
	assert.Contains(t, messenger.sent[0].body, "below the 30 minimum")
}

func TestRunSettlementNotice(t *testing.T) {
	d := resolvedDeposit("0x1", "alice", 50)
	settlementTx := "0xdest"
	settledAt := time.Now()
	d.SettlementTxHash = &settlementTx
	d.SettledAt = &settledAt

	repo := &fakeRepo{pendingNotices: []model.Deposit{d}}
	messenger := &fakeMessenger{}

	require.NoError(t, newNotifier(repo, messenger).Run(context.Background()))

	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0].body, "tx 0xdest")
	assert.Equal(t, []string{"0x1"}, repo.notified)
}

func TestRunFailedSendDoesNotBlockOthersOrStamp(t *testing.T) {
	repo := &fakeRepo{pendingAcks: []model.Deposit{
		resolvedDeposit("0x1", "alice", 50),
		resolvedDeposit("0x2", "bob", 50),
		resolvedDeposit("0x3", "carol", 50),
	}}
	messenger := &fakeMessenger{failFor: map[string]error{"bob": errors.New("mailbox full")}}

	require.NoError(t, newNotifier(repo, messenger).Run(context.Background()))

	require.Len(t, messenger.sent, 2)
	assert.Equal(t, []string{"0x1", "0x3"}, repo.acknowledged)
}

func TestRunUnresolvedPlaceholderSkipsSend(t *testing.T) {
	repo := &fakeRepo{pendingAcks: []model.Deposit{resolvedDeposit("0x1", "alice", 50)}}
	messenger := &fakeMessenger{}

	n := newNotifier(repo, messenger)
	n.templates = &template.Set{
		DepositFound: template.Message{Subject: "hi", Body: "deposit #UNKNOWN_FIELD#"},
	}

	require.NoError(t, n.Run(context.Background()))
	assert.Empty(t, messenger.sent)
	assert.Empty(t, repo.acknowledged)
}
