// Package lottery pools below-minimum deposits and pays the whole pot to one
// randomly drawn depositor.
package lottery

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mattg1981/arb-one-migration/internal/chain"
	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/messaging"
	"github.com/mattg1981/arb-one-migration/internal/store"
	"github.com/mattg1981/arb-one-migration/internal/template"
)

// Config holds the draw parameters.
type Config struct {
	// TokenSymbol fills the #TOKEN# placeholder in the winner message.
	TokenSymbol string

	// MaxAmount is the display-unit threshold; deposits strictly below it
	// form the pool. This matches the settlement minimum, so the lottery
	// covers exactly the deposits settlement never picks up.
	MaxAmount decimal.Decimal
}

// Result describes one completed draw.
type Result struct {
	Winner   model.LotteryEntrant
	Pool     *big.Int
	Entrants int
	TxHash   string
}

// Lottery runs a single draw. Each depositor gets exactly one entry no
// matter how many below-minimum deposits they made; the pot is the sum of
// every below-minimum deposit.
type Lottery struct {
	deposits  store.DepositRepository
	settler   chain.Settler
	messenger messaging.Messenger
	templates *template.Set
	cfg       Config
	logger    *slog.Logger
	pick      func(n int) (int, error)
}

func New(deposits store.DepositRepository, settler chain.Settler, messenger messaging.Messenger, templates *template.Set, cfg Config, logger *slog.Logger) *Lottery {
	return &Lottery{
		deposits:  deposits,
		settler:   settler,
		messenger: messenger,
		templates: templates,
		cfg:       cfg,
		logger:    logger.With("component", "lottery"),
		pick:      cryptoPick,
	}
}

// Draw selects a winner, pays out the pool, and messages the winner. A
// failed winner message does not undo the payout; the result is returned
// either way.
func (l *Lottery) Draw(ctx context.Context) (*Result, error) {
	entrants, err := l.deposits.FindLotteryEntrants(ctx, l.cfg.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("list entrants: %w", err)
	}
	if len(entrants) == 0 {
		l.logger.Info("no entrants, skipping draw")
		return nil, nil
	}

	pool, err := l.deposits.LotteryPool(ctx, l.cfg.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("sum pool: %w", err)
	}
	if pool.Sign() <= 0 {
		l.logger.Info("empty pool, skipping draw")
		return nil, nil
	}

	i, err := l.pick(len(entrants))
	if err != nil {
		return nil, fmt.Errorf("draw winner: %w", err)
	}
	winner := entrants[i]

	l.logger.Info("drew winner",
		"handle", winner.Handle,
		"address", winner.Address,
		"entrants", len(entrants),
		"pool", pool.String(),
	)

	txHash, err := l.settler.Distribute(ctx, []string{winner.Address}, []*big.Int{pool})
	if err != nil {
		return nil, fmt.Errorf("pay out pool to %s: %w", winner.Address, err)
	}

	result := &Result{Winner: winner, Pool: pool, Entrants: len(entrants), TxHash: txHash}

	if err := l.notifyWinner(ctx, winner, pool); err != nil {
		l.logger.Warn("winner message failed", "handle", winner.Handle, "error", err)
	}
	return result, nil
}

func (l *Lottery) notifyWinner(ctx context.Context, winner model.LotteryEntrant, pool *big.Int) error {
	vars := map[string]string{
		"NAME":   winner.Handle,
		"AMOUNT": model.DisplayAmountFor(pool).String(),
		"TOKEN":  l.cfg.TokenSymbol,
	}

	subject, err := template.Render(l.templates.LotteryWinner.Subject, vars)
	if err != nil {
		return err
	}
	body, err := template.Render(l.templates.LotteryWinner.Body, vars)
	if err != nil {
		return err
	}
	return l.messenger.Send(ctx, winner.Handle, subject, body)
}

// cryptoPick draws a uniform index with crypto/rand so a draw cannot be
// predicted from process state.
func cryptoPick(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}
