package exchange

import "context"

// Gateway abstracts a trading venue. Implementations handle protocol details;
// the core only sees this surface. Failures surface as returned errors.
type Gateway interface {
	Label() string
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, pair, exchangeOrderID string) error
	GetOrderBook(ctx context.Context, pair string) (OrderBook, error)
	GetTicker(ctx context.Context, pair string) (Ticker, error)
	GetMaxLeverage(pair string) float64
	GetBalances(ctx context.Context) ([]Balance, error)
	GetMarginPositions(ctx context.Context) ([]MarginPositionInfo, error)
}
