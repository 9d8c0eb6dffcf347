package game

import "testing"

func holders(shares ...int64) []*Player {
	out := make([]*Player, len(shares))
	for i, n := range shares {
		p := newPlayer(i, string(rune('A'+i)), 1_000)
		p.Portfolio[Gold] = n
		out[i] = p
	}
	return out
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name       string
		start      int64
		delta      int64
		wantPrice  int64
		wantShares []int64
		split      bool
		bankrupt   bool
	}{
		{name: "up", start: 100, delta: 10, wantPrice: 110, wantShares: []int64{10, 0, 3}},
		{name: "down", start: 100, delta: -20, wantPrice: 80, wantShares: []int64{10, 0, 3}},
		{name: "just below split", start: 190, delta: 5, wantPrice: 195, wantShares: []int64{10, 0, 3}},
		{name: "split at boundary", start: 195, delta: 5, wantPrice: 100, wantShares: []int64{20, 0, 6}, split: true},
		{name: "split past boundary", start: 195, delta: 10, wantPrice: 100, wantShares: []int64{20, 0, 6}, split: true},
		{name: "just above zero", start: 10, delta: -5, wantPrice: 5, wantShares: []int64{10, 0, 3}},
		{name: "bankrupt at zero", start: 10, delta: -10, wantPrice: 100, wantShares: []int64{0, 0, 0}, bankrupt: true},
		{name: "bankrupt below zero", start: 5, delta: -20, wantPrice: 100, wantShares: []int64{0, 0, 0}, bankrupt: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMarket()
			m.prices[Gold] = tc.start
			players := holders(10, 0, 3)

			out := m.applyMove(Gold, tc.delta, players)
			if out.Price != tc.wantPrice || m.price(Gold) != tc.wantPrice {
				t.Fatalf("price got=%d/%d want=%d", out.Price, m.price(Gold), tc.wantPrice)
			}
			if out.Split != tc.split || out.Bankrupt != tc.bankrupt {
				t.Fatalf("outcome got=%+v want split=%v bankrupt=%v", out, tc.split, tc.bankrupt)
			}
			for i, p := range players {
				if p.Portfolio[Gold] != tc.wantShares[i] {
					t.Fatalf("player %d shares got=%d want=%d", i, p.Portfolio[Gold], tc.wantShares[i])
				}
				if p.Cash != 1_000 {
					t.Fatalf("player %d cash changed to %d", i, p.Cash)
				}
			}
			for _, s := range Stocks {
				if s != Gold && m.price(s) != ParPriceCents {
					t.Fatalf("unrelated stock %s moved to %d", s, m.price(s))
				}
			}
		})
	}
}

func TestApplyDividend(t *testing.T) {
	tests := []struct {
		name       string
		price      int64
		amount     int64
		shares     []int64
		wantCash   []int64
		payable    bool
		wantPayees int
	}{
		{name: "at par pays nothing", price: 100, amount: 20, shares: []int64{10, 5}, wantCash: []int64{1_000, 1_000}},
		{name: "below par pays nothing", price: 60, amount: 20, shares: []int64{10, 5}, wantCash: []int64{1_000, 1_000}},
		{name: "above par pays holders", price: 105, amount: 10, shares: []int64{10, 0}, wantCash: []int64{1_100, 1_000}, payable: true, wantPayees: 1},
		{name: "nobody owns it", price: 150, amount: 5, shares: []int64{0, 0}, wantCash: []int64{1_000, 1_000}, payable: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMarket()
			m.prices[Gold] = tc.price
			players := holders(tc.shares...)

			out := m.applyDividend(Gold, tc.amount, players)
			if out.Payable != tc.payable || len(out.Payees) != tc.wantPayees {
				t.Fatalf("outcome got=%+v", out)
			}
			if m.price(Gold) != tc.price {
				t.Fatalf("dividend moved price to %d", m.price(Gold))
			}
			for i, p := range players {
				if p.Cash != tc.wantCash[i] {
					t.Fatalf("player %d cash got=%d want=%d", i, p.Cash, tc.wantCash[i])
				}
				if p.Portfolio[Gold] != tc.shares[i] {
					t.Fatalf("player %d shares changed to %d", i, p.Portfolio[Gold])
				}
			}
		})
	}
}

func TestNetWorth(t *testing.T) {
	m := newMarket()
	m.prices[Gold] = 150
	m.prices[Oil] = 40
	p := newPlayer(0, "A", 2_500)
	p.Portfolio[Gold] = 10
	p.Portfolio[Oil] = 3
	p.Portfolio[Grain] = 2

	want := int64(2_500 + 10*150 + 3*40 + 2*100)
	if got := m.netWorth(p); got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}
