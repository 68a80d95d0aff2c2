package trader

import (
	"github.com/sirupsen/logrus"
)

// arbitrageBudget sizes one exchange leg from that exchange's own quote
// balance instead of the fixed group budget. Cross-exchange setups keep each
// leg proportional to the funds actually parked there.
func (t *Trader) arbitrageBudget(label, pair string) float64 {
	_, quote := splitPair(pair)
	available, _ := t.store.Balance(label, quote).Float64()
	pct := t.cfg.MaxTradeBalancePercent
	if pct <= 0 || pct > 100 {
		pct = 100
	}
	budget := available * pct / 100
	if budget <= 0 {
		logrus.Debugf("%s: no %s balance for arbitrage leg on %s", label, quote, pair)
	}
	return budget
}
