package matcher

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

	"github.com/mattg1981/arb-one-migration/internal/directory"
	"github.com/mattg1981/arb-one-migration/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepo struct {
	unresolved  []model.Deposit
	assignments map[string]string
	assignErr   error
}

func (f *fakeRepo) FindUnresolved(context.Context) ([]model.Deposit, error) {
	return f.unresolved, nil
}

func (f *fakeRepo) AssignHandle(_ context.Context, addr, handle string) (int64, error) {
	if f.assignErr != nil {
		return 0, f.assignErr
	}
	if f.assignments == nil {
		f.assignments = make(map[string]string)
	}
	f.assignments[addr] = handle
	return 1, nil
}

func (f *fakeRepo) InsertIfAbsent(context.Context, *model.Deposit) (bool, error) { return false, nil }
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
func (f *fakeRepo) FindLotteryEntrants(context.Context, decimal.Decimal) ([]model.LotteryEntrant, error) {
	return nil, nil
}
func (f *fakeRepo) LotteryPool(context.Context, decimal.Decimal) (*big.Int, error) {
	return big.NewInt(0), nil
}

type fakeDirectory struct {
	entries []directory.Entry
	err     error
	calls   int
}

func (f *fakeDirectory) ListKnownAddresses(context.Context) ([]directory.Entry, error) {
	f.calls++
	return f.entries, f.err
}

func unresolvedDeposit(addr string) model.Deposit {
	return model.Deposit{
		SourceTxHash:  "0xtx-" + addr,
		SourceAddress: addr,
		RawAmount:     big.NewInt(1),
	}
}

func TestRunAssignsKnownAddresses(t *testing.T) {
	repo := &fakeRepo{unresolved: []model.Deposit{
		unresolvedDeposit("0xaaa"),
		unresolvedDeposit("0xbbb"),
	}}
	dir := &fakeDirectory{entries: []directory.Entry{
		{Address: "0xAAA", Handle: "alice"},
	}}

	m := New(repo, dir, testLogger())
	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, map[string]string{"0xaaa": "alice"}, repo.assignments)
}

func TestRunVisitsEachAddressOnce(t *testing.T) {
	repo := &fakeRepo{unresolved: []model.Deposit{
		unresolvedDeposit("0xaaa"),
		unresolvedDeposit("0xaaa"),
	}}
	dir := &fakeDirectory{entries: []directory.Entry{
		{Address: "0xaaa", Handle: "alice"},
	}}

	m := New(repo, dir, testLogger())
	require.NoError(t, m.Run(context.Background()))
	assert.Len(t, repo.assignments, 1)
}

func TestRunSkipsDirectoryFetchWhenNothingUnresolved(t *testing.T) {
	repo := &fakeRepo{}
	dir := &fakeDirectory{}

	m := New(repo, dir, testLogger())
	require.NoError(t, m.Run(context.Background()))
	assert.Zero(t, dir.calls)
}

func TestRunDirectoryFailureAbortsStage(t *testing.T) {
	repo := &fakeRepo{unresolved: []model.Deposit{unresolvedDeposit("0xaaa")}}
	dir := &fakeDirectory{err: errors.New("upstream down")}

	m := New(repo, dir, testLogger())
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, repo.assignments)
}
