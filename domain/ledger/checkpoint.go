package ledger

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
)

type BalanceEntry struct {
	Account AccountID
	Asset   Asset
	Amount  decimal.Decimal
}

type ConsumedEntry struct {
	Account  AccountID
	Asset    Asset
	MarketID MarketID
	Amount   decimal.Decimal
}

type WithdrawalFeeEntry struct {
	Asset Asset
	Fee   decimal.Decimal
}

// Snapshot is the whole state as plain values, every list sorted so two
// equal states always produce the same snapshot.
type Snapshot struct {
	FeeRates       amount.FeeRates
	Markets        []orderbook.MarketState
	Balances       []BalanceEntry
	Consumed       []ConsumedEntry
	WithdrawalFees []WithdrawalFeeEntry
}

func (s *State) Checkpoint() Snapshot {
	snap := Snapshot{FeeRates: s.FeeRates}
	for _, id := range s.MarketIDs() {
		snap.Markets = append(snap.Markets, s.markets[id].Checkpoint())
	}
	for _, account := range s.Accounts() {
		for _, asset := range s.BalanceAssets(account) {
			snap.Balances = append(snap.Balances, BalanceEntry{Account: account, Asset: asset, Amount: s.balances[account][asset]})
		}
		for _, asset := range s.ConsumedAssets(account) {
			for _, market := range s.ConsumedMarkets(account, asset) {
				snap.Consumed = append(snap.Consumed, ConsumedEntry{
					Account:  account,
					Asset:    asset,
					MarketID: market,
					Amount:   s.consumed[account][asset][market],
				})
			}
		}
	}
	for _, asset := range s.WithdrawalFeeAssets() {
		snap.WithdrawalFees = append(snap.WithdrawalFees, WithdrawalFeeEntry{Asset: asset, Fee: s.withdrawalFees[asset]})
	}
	return snap
}

// Restore rebuilds a state from a snapshot. opts apply to every market.
func Restore(snap Snapshot, opts ...orderbook.MarketOption) (*State, error) {
	s := New()
	s.FeeRates = snap.FeeRates
	for _, ms := range snap.Markets {
		if _, dup := s.markets[ms.ID]; dup {
			return nil, errors.Newf("duplicate market %s", ms.ID)
		}
		m, err := orderbook.RestoreMarket(ms, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "restore market")
		}
		s.AddMarket(m)
	}
	for _, b := range snap.Balances {
		s.SetBalance(b.Account, b.Asset, b.Amount)
	}
	for _, c := range snap.Consumed {
		if _, ok := s.markets[c.MarketID]; !ok {
			return nil, errors.Newf("consumption for unknown market %s", c.MarketID)
		}
		s.SetConsumed(c.Account, c.Asset, c.MarketID, c.Amount)
	}
	for _, f := range snap.WithdrawalFees {
		s.SetWithdrawalFee(f.Asset, f.Fee)
	}
	return s, nil
}
