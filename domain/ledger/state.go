// Package ledger holds the sequencer state: every market, per-account
// balances, what resting orders reserve in each market, and the fee
// configuration. A State is owned by exactly one engine.
package ledger

import (
	"cmp"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
)

type (
	AccountID = orderbook.AccountID
	Asset     = orderbook.Asset
	MarketID  = orderbook.MarketID
)

// LimitsUpdate is what an account can still commit in one market:
// balance minus everything reserved for the asset across all markets.
type LimitsUpdate struct {
	Account  AccountID       `json:"account"`
	MarketID MarketID        `json:"marketId"`
	Base     decimal.Decimal `json:"base"`
	Quote    decimal.Decimal `json:"quote"`
}

type State struct {
	FeeRates amount.FeeRates

	markets        map[MarketID]*orderbook.Market
	marketsByAsset map[Asset][]MarketID
	balances       map[AccountID]map[Asset]decimal.Decimal
	consumed       map[AccountID]map[Asset]map[MarketID]decimal.Decimal
	withdrawalFees map[Asset]decimal.Decimal
}

func New() *State {
	return &State{
		markets:        make(map[MarketID]*orderbook.Market),
		marketsByAsset: make(map[Asset][]MarketID),
		balances:       make(map[AccountID]map[Asset]decimal.Decimal),
		consumed:       make(map[AccountID]map[Asset]map[MarketID]decimal.Decimal),
		withdrawalFees: make(map[Asset]decimal.Decimal),
	}
}

// ----- Markets -----

func (s *State) AddMarket(m *orderbook.Market) {
	s.markets[m.ID] = m
	for _, asset := range []Asset{m.ID.Base(), m.ID.Quote()} {
		ids := s.marketsByAsset[asset]
		if i, found := slices.BinarySearch(ids, m.ID); !found {
			s.marketsByAsset[asset] = slices.Insert(ids, i, m.ID)
		}
	}
}

func (s *State) Market(id MarketID) (*orderbook.Market, bool) {
	m, ok := s.markets[id]
	return m, ok
}

// MarketIDs returns every market id, ascending.
func (s *State) MarketIDs() []MarketID {
	return slices.Sorted(maps.Keys(s.markets))
}

// MarketIDsByAsset returns the markets trading asset as base or quote,
// ascending.
func (s *State) MarketIDsByAsset(asset Asset) []MarketID {
	return s.marketsByAsset[asset]
}

// ----- Balances -----

func (s *State) Balance(account AccountID, asset Asset) decimal.Decimal {
	if v, ok := s.balances[account][asset]; ok {
		return v
	}
	return amount.Zero
}

func (s *State) SetBalance(account AccountID, asset Asset, v decimal.Decimal) {
	byAsset, ok := s.balances[account]
	if !ok {
		byAsset = make(map[Asset]decimal.Decimal)
		s.balances[account] = byAsset
	}
	byAsset[asset] = v
}

// AddBalance applies a deposit or rollback. The result may be negative.
func (s *State) AddBalance(account AccountID, asset Asset, delta decimal.Decimal) {
	s.SetBalance(account, asset, s.Balance(account, asset).Add(delta))
}

// ApplyTradeDelta applies a settlement delta, flooring the balance at zero.
func (s *State) ApplyTradeDelta(account AccountID, asset Asset, delta decimal.Decimal) {
	s.SetBalance(account, asset, amount.Max(amount.Zero, s.Balance(account, asset).Add(delta)))
}

// ----- Consumption -----

func (s *State) Consumed(account AccountID, asset Asset, market MarketID) decimal.Decimal {
	if v, ok := s.consumed[account][asset][market]; ok {
		return v
	}
	return amount.Zero
}

// SetConsumed records the reservation; zero removes the entry.
func (s *State) SetConsumed(account AccountID, asset Asset, market MarketID, v decimal.Decimal) {
	if v.IsZero() {
		byMarket := s.consumed[account][asset]
		if byMarket == nil {
			return
		}
		delete(byMarket, market)
		if len(byMarket) == 0 {
			delete(s.consumed[account], asset)
		}
		if len(s.consumed[account]) == 0 {
			delete(s.consumed, account)
		}
		return
	}
	byAsset, ok := s.consumed[account]
	if !ok {
		byAsset = make(map[Asset]map[MarketID]decimal.Decimal)
		s.consumed[account] = byAsset
	}
	byMarket, ok := byAsset[asset]
	if !ok {
		byMarket = make(map[MarketID]decimal.Decimal)
		byAsset[asset] = byMarket
	}
	byMarket[market] = v
}

// TotalConsumed sums the account's reservations of asset over every market.
func (s *State) TotalConsumed(account AccountID, asset Asset) decimal.Decimal {
	total := amount.Zero
	for _, v := range s.consumed[account][asset] {
		total = total.Add(v)
	}
	return total
}

// ConsumedMarkets lists markets in which the account reserves asset,
// ascending.
func (s *State) ConsumedMarkets(account AccountID, asset Asset) []MarketID {
	return slices.Sorted(maps.Keys(s.consumed[account][asset]))
}

// RecomputeConsumption refreshes the account's base and quote
// reservations in market from its resting orders and reports whether
// either changed.
func (s *State) RecomputeConsumption(account AccountID, m *orderbook.Market) bool {
	changed := false
	base, quote := m.ID.Assets()
	for asset, required := range map[Asset]decimal.Decimal{base: m.BaseRequired(account), quote: m.QuoteRequired(account)} {
		if !s.Consumed(account, asset, m.ID).Equal(required) {
			s.SetConsumed(account, asset, m.ID, required)
			changed = true
		}
	}
	return changed
}

// Free is the balance not reserved by resting orders in any market.
func (s *State) Free(account AccountID, asset Asset) decimal.Decimal {
	return s.Balance(account, asset).Sub(s.TotalConsumed(account, asset))
}

func (s *State) Limits(account AccountID, market MarketID) LimitsUpdate {
	base, quote := market.Assets()
	return LimitsUpdate{
		Account:  account,
		MarketID: market,
		Base:     s.Free(account, base),
		Quote:    s.Free(account, quote),
	}
}

// ----- Fees -----

func (s *State) WithdrawalFee(asset Asset) decimal.Decimal {
	if v, ok := s.withdrawalFees[asset]; ok {
		return v
	}
	return amount.Zero
}

func (s *State) SetWithdrawalFee(asset Asset, fee decimal.Decimal) {
	s.withdrawalFees[asset] = fee
}

// ----- Iteration -----

// Accounts returns every account holding a balance or reservation, ascending.
func (s *State) Accounts() []AccountID {
	seen := make(map[AccountID]struct{}, len(s.balances))
	for a := range s.balances {
		seen[a] = struct{}{}
	}
	for a := range s.consumed {
		seen[a] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (s *State) BalanceAssets(account AccountID) []Asset {
	return slices.Sorted(maps.Keys(s.balances[account]))
}

func (s *State) ConsumedAssets(account AccountID) []Asset {
	return slices.Sorted(maps.Keys(s.consumed[account]))
}

func (s *State) WithdrawalFeeAssets() []Asset {
	return slices.Sorted(maps.Keys(s.withdrawalFees))
}

// Equal compares two states value by value. Markets compare with
// Market.Equal so ring rotation does not matter.
func (s *State) Equal(x *State) bool {
	if s.FeeRates != x.FeeRates {
		return false
	}
	if !slices.Equal(s.MarketIDs(), x.MarketIDs()) {
		return false
	}
	for id, m := range s.markets {
		if !m.Equal(x.markets[id]) {
			return false
		}
	}
	return maps.EqualFunc(s.withdrawalFees, x.withdrawalFees, decimal.Decimal.Equal) &&
		maps.EqualFunc(s.balances, x.balances, func(a, b map[Asset]decimal.Decimal) bool {
			return maps.EqualFunc(a, b, decimal.Decimal.Equal)
		}) &&
		maps.EqualFunc(s.consumed, x.consumed, func(a, b map[Asset]map[MarketID]decimal.Decimal) bool {
			return maps.EqualFunc(a, b, func(c, d map[MarketID]decimal.Decimal) bool {
				return maps.EqualFunc(c, d, decimal.Decimal.Equal)
			})
		})
}

// SortLimits orders updates by account, then market.
func SortLimits(updates []LimitsUpdate) {
	slices.SortFunc(updates, func(a, b LimitsUpdate) int {
		if c := cmp.Compare(a.Account, b.Account); c != 0 {
			return c
		}
		return cmp.Compare(a.MarketID, b.MarketID)
	})
}
