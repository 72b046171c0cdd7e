package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fundbuilder/types"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory implementation of the engine's persistence
// ports, keyed by calendar date.
type fakeStore struct {
	instruments map[string]types.InstrumentInfo
	inactive    map[string]bool
	records     map[string]map[string]*types.Position
	trades      []tradeEntry

	transactions []types.CashTransaction
	nextTxID     int

	account     *types.Account
	members     []string
	capital     map[string]map[string]decimal.Decimal
	unitHistory []unitPoint

	redemptions []types.Redemption
}

type tradeEntry struct {
	trade     types.Trade
	tradeType types.TradeType
	date      time.Time
}

type unitPoint struct {
	date  time.Time
	price decimal.Decimal
}

func newFakeStore(account *types.Account) *fakeStore {
	var members []string
	for _, m := range account.Members {
		members = append(members, m.Name)
	}
	return &fakeStore{
		instruments: make(map[string]types.InstrumentInfo),
		inactive:    make(map[string]bool),
		records:     make(map[string]map[string]*types.Position),
		capital:     make(map[string]map[string]decimal.Decimal),
		account:     account,
		members:     members,
	}
}

func dk(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *fakeStore) putRecord(date time.Time, pos types.Position) {
	key := dk(date)
	if s.records[key] == nil {
		s.records[key] = make(map[string]*types.Position)
	}
	pos.ValuationDate = date
	s.records[key][pos.Name] = &pos
	if _, ok := s.instruments[pos.Name]; !ok {
		s.instruments[pos.Name] = types.InstrumentInfo{Symbol: pos.Name}
	}
}

func (s *fakeStore) putCapital(date time.Time, member string, units decimal.Decimal) {
	key := dk(date)
	if s.capital[key] == nil {
		s.capital[key] = make(map[string]decimal.Decimal)
	}
	s.capital[key][member] = units
}

func (s *fakeStore) addCash(valuationDate time.Time, txType, parameter string, amount decimal.Decimal) {
	s.nextTxID++
	s.transactions = append(s.transactions, types.CashTransaction{
		ID:              fmt.Sprintf("tx-%d", s.nextTxID),
		ValuationDate:   valuationDate,
		TransactionDate: valuationDate,
		Type:            txType,
		Parameter:       parameter,
		Amount:          amount,
	})
}

// positionStore

func (s *fakeStore) ActivePositions(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error) {
	var out []types.Position
	for _, pos := range s.records[dk(date)] {
		if !s.inactive[pos.Name] {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) PositionRecords(token *types.UserToken, date time.Time, ctx context.Context) ([]types.Position, error) {
	var out []types.Position
	for _, pos := range s.records[dk(date)] {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) InstrumentInfo(name string, ctx context.Context) (*types.InstrumentInfo, error) {
	info, ok := s.instruments[name]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (s *fakeStore) recordDates() []time.Time {
	var dates []time.Time
	for key := range s.records {
		d, _ := time.Parse("2006-01-02", key)
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (s *fakeStore) LatestRecordDate(token *types.UserToken, ctx context.Context) (*time.Time, error) {
	dates := s.recordDates()
	if len(dates) == 0 {
		return nil, nil
	}
	return &dates[len(dates)-1], nil
}

func (s *fakeStore) PreviousRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error) {
	var previous *time.Time
	for _, d := range s.recordDates() {
		if d.Before(date) {
			d := d
			previous = &d
		}
	}
	return previous, nil
}

func (s *fakeStore) IsRecordDate(token *types.UserToken, date time.Time, ctx context.Context) (bool, error) {
	_, ok := s.records[dk(date)]
	return ok, nil
}

func (s *fakeStore) RollPosition(token *types.UserToken, name string, date, previous time.Time, ctx context.Context) error {
	prev, ok := s.records[dk(previous)][name]
	if !ok {
		return fmt.Errorf("no record for %s at %s", name, dk(previous))
	}
	if _, exists := s.records[dk(date)][name]; exists {
		return nil
	}
	s.putRecord(date, *prev)
	return nil
}

func (s *fakeStore) row(name string, date time.Time) (*types.Position, error) {
	pos, ok := s.records[dk(date)][name]
	if !ok {
		return nil, fmt.Errorf("no record for %s at %s", name, dk(date))
	}
	return pos, nil
}

func (s *fakeStore) SellShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, ctx context.Context) error {
	pos, err := s.row(name, date)
	if err != nil {
		return err
	}
	pos.Quantity = pos.Quantity.Sub(quantity)
	return nil
}

func (s *fakeStore) SetQuantity(token *types.UserToken, name string, date time.Time, quantity decimal.Decimal, ctx context.Context) error {
	pos, err := s.row(name, date)
	if err != nil {
		return err
	}
	pos.Quantity = quantity
	return nil
}

func (s *fakeStore) AddShares(token *types.UserToken, name string, quantity decimal.Decimal, date time.Time, totalCost decimal.Decimal, ctx context.Context) error {
	pos, err := s.row(name, date)
	if err != nil {
		return err
	}
	pos.Quantity = pos.Quantity.Add(quantity)
	pos.TotalCost = pos.TotalCost.Add(totalCost)
	if !pos.Quantity.IsZero() {
		pos.AveragePrice = pos.TotalCost.Div(pos.Quantity)
	}
	pos.LastBought = date
	return nil
}

func (s *fakeStore) SetDividend(token *types.UserToken, name string, date time.Time, dividend decimal.Decimal, ctx context.Context) error {
	pos, err := s.row(name, date)
	if err != nil {
		return err
	}
	pos.Dividend = dividend
	return nil
}

func (s *fakeStore) SetClosingPrice(token *types.UserToken, name string, date time.Time, price decimal.Decimal, ctx context.Context) error {
	pos, err := s.row(name, date)
	if err != nil {
		return err
	}
	pos.SharePrice = price
	return nil
}

func (s *fakeStore) CreatePosition(token *types.UserToken, trade types.Trade, date time.Time, closing decimal.Decimal, ctx context.Context) error {
	s.instruments[trade.Name] = types.InstrumentInfo{
		Symbol:        trade.Symbol,
		Exchange:      trade.Exchange,
		Currency:      trade.Currency,
		ScalingFactor: trade.ScalingFactor,
	}
	delete(s.inactive, trade.Name)
	averagePrice := decimal.Zero
	if !trade.Quantity.IsZero() {
		averagePrice = trade.TotalCost.Div(trade.Quantity)
	}
	s.putRecord(date, types.Position{
		Name:         trade.Name,
		LastBought:   trade.TransactionDate,
		Quantity:     trade.Quantity,
		AveragePrice: averagePrice,
		TotalCost:    trade.TotalCost,
		SharePrice:   closing,
	})
	return nil
}

func (s *fakeStore) DeactivatePosition(token *types.UserToken, name string, ctx context.Context) error {
	s.inactive[name] = true
	return nil
}

func (s *fakeStore) AddTradeHistory(token *types.UserToken, trades []types.Trade, tradeType types.TradeType, date time.Time, ctx context.Context) error {
	for _, trade := range trades {
		s.trades = append(s.trades, tradeEntry{trade: trade, tradeType: tradeType, date: date})
	}
	return nil
}

func (s *fakeStore) TradesBetween(token *types.UserToken, from, to time.Time, ctx context.Context) (*types.TradeBatch, error) {
	batch := &types.TradeBatch{}
	for _, entry := range s.trades {
		if entry.date.Before(from) || entry.date.After(to) {
			continue
		}
		switch entry.tradeType {
		case types.TradeBuy:
			batch.Buys = append(batch.Buys, entry.trade)
		case types.TradeSell:
			batch.Sells = append(batch.Sells, entry.trade)
		case types.TradeModify:
			batch.Changed = append(batch.Changed, entry.trade)
		}
	}
	return batch, nil
}

// cashStore

var fakeReceiptTypes = map[string]bool{
	types.TxSubscription:  true,
	types.TxBalanceInHand: true,
	types.TxSale:          true,
	types.TxDividend:      true,
	types.TxInterest:      true,
}

func (s *fakeStore) CashBalance(token *types.UserToken, date time.Time, ctx context.Context) (*types.CashBalance, error) {
	balance, _ := s.BalanceInHand(token, date, ctx)
	out := &types.CashBalance{BankBalance: balance, Dividends: make(map[string]decimal.Decimal)}
	for _, tx := range s.transactions {
		if tx.Type == types.TxDividend && dk(tx.ValuationDate) == dk(date) {
			out.Dividends[tx.Parameter] = out.Dividends[tx.Parameter].Add(tx.Amount)
		}
	}
	return out, nil
}

func (s *fakeStore) BalanceInHand(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, tx := range s.transactions {
		if tx.Type == types.TxBalanceInHandCF && dk(tx.ValuationDate) == dk(date) {
			balance = balance.Add(tx.Amount)
		}
	}
	return balance, nil
}

func (s *fakeStore) Transactions(token *types.UserToken, side types.CashSide, date time.Time, ctx context.Context) ([]types.CashTransaction, error) {
	var out []types.CashTransaction
	for _, tx := range s.transactions {
		txSide := types.SidePayment
		if fakeReceiptTypes[tx.Type] {
			txSide = types.SideReceipt
		}
		if txSide == side && dk(tx.ValuationDate) == dk(date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) AddTransaction(token *types.UserToken, tx types.CashTransaction, ctx context.Context) (string, error) {
	if tx.ID == "" {
		s.nextTxID++
		tx.ID = fmt.Sprintf("tx-%d", s.nextTxID)
	}
	s.transactions = append(s.transactions, tx)
	return tx.ID, nil
}

func (s *fakeStore) RemoveTransaction(token *types.UserToken, id string, ctx context.Context) error {
	for i, tx := range s.transactions {
		if tx.ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s not found", id)
}

// capitalStore

func (s *fakeStore) Account(token *types.UserToken, ctx context.Context) (*types.Account, error) {
	return s.account, nil
}

func (s *fakeStore) Members(token *types.UserToken, date time.Time, ctx context.Context) ([]string, error) {
	return s.members, nil
}

func (s *fakeStore) MemberCapital(token *types.UserToken, date time.Time, ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for member, units := range s.capital[dk(date)] {
		out[member] = units
	}
	return out, nil
}

func (s *fakeStore) SetMemberCapital(token *types.UserToken, date time.Time, member string, units decimal.Decimal, ctx context.Context) error {
	s.putCapital(date, member, units)
	return nil
}

func (s *fakeStore) MemberSubscription(token *types.UserToken, date time.Time, member string, ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, tx := range s.transactions {
		if tx.Type == types.TxSubscription && strings.EqualFold(tx.Parameter, member) && dk(tx.ValuationDate) == dk(date) {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (s *fakeStore) UnitPrice(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	for _, point := range s.unitHistory {
		if dk(point.date) == dk(date) {
			return point.price, nil
		}
	}
	return decimal.Zero, nil
}

func (s *fakeStore) SaveUnitPrice(token *types.UserToken, date time.Time, price decimal.Decimal, ctx context.Context) error {
	for i, point := range s.unitHistory {
		if dk(point.date) == dk(date) {
			s.unitHistory[i].price = price
			return nil
		}
	}
	s.unitHistory = append(s.unitHistory, unitPoint{date: date, price: price})
	sort.Slice(s.unitHistory, func(i, j int) bool { return s.unitHistory[i].date.Before(s.unitHistory[j].date) })
	return nil
}

func (s *fakeStore) UnitPriceRange(token *types.UserToken, from, to time.Time, ctx context.Context) ([]decimal.Decimal, error) {
	var prices []decimal.Decimal
	for _, point := range s.unitHistory {
		if !point.date.Before(from) && !point.date.After(to) {
			prices = append(prices, point.price)
		}
	}
	return prices, nil
}

func (s *fakeStore) IssuedUnits(token *types.UserToken, date time.Time, ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, units := range s.capital[dk(date)] {
		total = total.Add(units)
	}
	return total, nil
}

func (s *fakeStore) LatestValuationDate(token *types.UserToken, ctx context.Context) (*time.Time, error) {
	if len(s.unitHistory) == 0 {
		return nil, nil
	}
	latest := s.unitHistory[len(s.unitHistory)-1].date
	return &latest, nil
}

func (s *fakeStore) PreviousValuationDate(token *types.UserToken, date time.Time, ctx context.Context) (*time.Time, error) {
	var previous *time.Time
	for _, point := range s.unitHistory {
		if point.date.Before(date) {
			d := point.date
			previous = &d
		}
	}
	return previous, nil
}

// redemptionStore

func (s *fakeStore) Redemptions(token *types.UserToken, since time.Time, ctx context.Context) ([]types.Redemption, error) {
	var out []types.Redemption
	for _, r := range s.redemptions {
		if r.TransactionDate.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) AddRedemption(token *types.UserToken, member string, transactionDate time.Time, amount decimal.Decimal, ctx context.Context) error {
	s.redemptions = append(s.redemptions, types.Redemption{
		ID:              fmt.Sprintf("rd-%d", len(s.redemptions)+1),
		Member:          member,
		Amount:          amount,
		TransactionDate: transactionDate,
		Status:          types.RedemptionPending,
	})
	return nil
}

func (s *fakeStore) UpdateRedemption(token *types.UserToken, member string, transactionDate time.Time, amount, units decimal.Decimal, ctx context.Context) (types.RedemptionStatus, error) {
	for i := range s.redemptions {
		r := &s.redemptions[i]
		if r.Member == member && dk(r.TransactionDate) == dk(transactionDate) {
			r.Amount = amount
			r.RedeemedUnits = units
			r.Status = types.RedemptionComplete
			return types.RedemptionComplete, nil
		}
	}
	return types.RedemptionFailed, fmt.Errorf("redemption for %s not found", member)
}

// fakePrices resolves closing prices from a fixed table.
type fakePrices struct {
	prices map[string]decimal.Decimal
}

func (f *fakePrices) ClosingPrice(info types.InstrumentInfo, name, reportingCurrency string, override *decimal.Decimal) (decimal.Decimal, bool) {
	if override != nil {
		return *override, true
	}
	price, ok := f.prices[name]
	return price, ok
}

// captureSink records written reports.
type captureSink struct {
	reports []*types.AssetReport
}

func (c *captureSink) WriteAssetReport(report *types.AssetReport) error {
	c.reports = append(c.reports, report)
	return nil
}

func testAccount() *types.Account {
	return &types.Account{
		ID:                types.AccountID{Name: "TestClub", ID: 1},
		ReportingCurrency: "GBP",
		Enabled:           true,
		Members: []types.AccountMember{
			{Name: "alice", Level: types.AuthAdministrator},
			{Name: "bob", Level: types.AuthUpdate},
		},
	}
}

func adminToken() *types.UserToken {
	return &types.UserToken{User: "alice", Account: types.AccountID{Name: "TestClub", ID: 1}, Level: types.AuthAdministrator}
}

func newTestEngine(store *fakeStore, prices map[string]decimal.Decimal) (*Engine, *captureSink) {
	sink := &captureSink{}
	eng := New(store, store, store, store, &fakePrices{prices: prices}, NewBrokers(), sink)
	return eng, sink
}
