package game

// market holds the six prices in cents. Outside applyMove every price is
// strictly between 0 and SplitPriceCents.
type market struct {
	prices map[Stock]int64
}

type moveOutcome struct {
	Price    int64
	Split    bool
	Bankrupt bool
}

type dividendOutcome struct {
	Payable  bool
	PerShare int64
	Payees   []string
	Paid     int64
}

func newMarket() *market {
	m := &market{prices: make(map[Stock]int64, len(Stocks))}
	for _, s := range Stocks {
		m.prices[s] = ParPriceCents
	}
	return m
}

func (m *market) price(stock Stock) int64 {
	return m.prices[stock]
}

// applyMove shifts the price by delta. Reaching SplitPriceCents doubles every
// holding and resets to par; reaching zero wipes every holding and resets to par.
func (m *market) applyMove(stock Stock, delta int64, players []*Player) moveOutcome {
	next := m.prices[stock] + delta
	switch {
	case next >= SplitPriceCents:
		for _, p := range players {
			p.Portfolio[stock] *= 2
		}
		m.prices[stock] = ParPriceCents
		return moveOutcome{Price: ParPriceCents, Split: true}
	case next <= 0:
		for _, p := range players {
			p.Portfolio[stock] = 0
		}
		m.prices[stock] = ParPriceCents
		return moveOutcome{Price: ParPriceCents, Bankrupt: true}
	}
	m.prices[stock] = next
	return moveOutcome{Price: next}
}

// applyDividend pays amount cents per share to every holder while the stock
// trades above par. Prices and holdings never change.
func (m *market) applyDividend(stock Stock, amount int64, players []*Player) dividendOutcome {
	out := dividendOutcome{PerShare: amount}
	if m.prices[stock] <= ParPriceCents {
		return out
	}
	out.Payable = true
	for _, p := range players {
		shares := p.Portfolio[stock]
		if shares <= 0 {
			continue
		}
		payout := shares * amount
		p.Cash += payout
		out.Paid += payout
		out.Payees = append(out.Payees, p.Name)
	}
	return out
}

func (m *market) netWorth(p *Player) int64 {
	total := p.Cash
	for _, s := range Stocks {
		total += p.Portfolio[s] * m.prices[s]
	}
	return total
}

func (m *market) quotes() []StockQuote {
	out := make([]StockQuote, 0, len(Stocks))
	for _, s := range Stocks {
		out = append(out, StockQuote{Stock: s, PriceCents: m.prices[s]})
	}
	return out
}
