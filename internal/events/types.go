package events

// Event enumerates high-level topics inside the advisor core.
//
// Trading signals deliberately do not ride the bus: strategies hand them to
// the aggregator directly so that tick accounting stays deterministic. The
// bus carries the ambient traffic around that path.
type Event string

const (
	EventTradeTick       Event = "trade_tick"
	EventCandleTick      Event = "candle_tick"
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderFilled     Event = "order.filled"
	EventOrderRejected   Event = "order.rejected"
	EventOrderCancelled  Event = "order.cancelled"
	EventTradeConfirmed  Event = "trade.confirmed"
	EventTradeSkipped    Event = "trade.skipped"
	EventPortfolioSynced Event = "portfolio.synced"
	EventSchedulingError Event = "scheduling.error"
	EventRiskAlert       Event = "risk_alert"
)
