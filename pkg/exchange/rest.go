package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RestConfig holds credentials and routing for a signed spot REST venue.
type RestConfig struct {
	Label       string
	BaseURL     string // e.g. "https://api.binance.com"
	APIKey      string
	APISecret   string
	RecvWindow  int64             // ms, defaults to 5000
	Symbols     map[string]string // internal pair -> venue symbol, e.g. "USD_BTC" -> "BTCUSDT"
	MaxLeverage float64
	// RequestsPerSecond throttles signed calls; defaults to 10.
	RequestsPerSecond float64
}

// RestGateway talks to a Binance-style signed spot REST API.
type RestGateway struct {
	cfg        RestConfig
	httpClient *http.Client
	limiter    *Limiter
}

// NewRestGateway creates a live spot gateway.
func NewRestGateway(cfg RestConfig) *RestGateway {
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = 1
	}
	return &RestGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    NewLimiter(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)*2),
	}
}

func (g *RestGateway) Label() string { return g.cfg.Label }

func (g *RestGateway) symbol(pair string) (string, error) {
	if s, ok := g.cfg.Symbols[pair]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no venue symbol mapped for pair %s", pair)
}

func (g *RestGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if g.cfg.APIKey == "" || g.cfg.APISecret == "" {
		return OrderResult{}, errors.New("api key/secret required")
	}
	symbol, err := g.symbol(req.Pair)
	if err != nil {
		return OrderResult{}, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Amount))
	params.Set("newOrderRespType", "FULL")
	if req.Type == OrderTypeLimit {
		params.Set("price", formatFloat(req.Rate))
		params.Set("timeInForce", "GTC")
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := g.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return OrderResult{}, err
	}

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
		Fills         []struct {
			Price      string `json:"price"`
			Qty        string `json:"qty"`
			Commission string `json:"commission"`
			TradeID    int64  `json:"tradeId"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}

	result := OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		Status:          mapStatus(resp.Status),
		FilledAmount:    parseFloat(resp.ExecutedQty),
	}
	var notional float64
	now := time.Now()
	for _, f := range resp.Fills {
		rate := parseFloat(f.Price)
		amount := parseFloat(f.Qty)
		notional += rate * amount
		result.Fee += parseFloat(f.Commission)
		result.Fills = append(result.Fills, Fill{
			TradeID: strconv.FormatInt(f.TradeID, 10),
			Rate:    rate,
			Amount:  amount,
			Time:    now,
		})
	}
	if result.FilledAmount > 0 {
		result.FilledRate = notional / result.FilledAmount
	}
	return result, nil
}

func (g *RestGateway) CancelOrder(ctx context.Context, pair, exchangeOrderID string) error {
	symbol, err := g.symbol(pair)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)
	_, err = g.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

func (g *RestGateway) GetOrderBook(ctx context.Context, pair string) (OrderBook, error) {
	symbol, err := g.symbol(pair)
	if err != nil {
		return OrderBook{}, err
	}
	body, err := g.doPublic(ctx, "/api/v3/depth?limit=20&symbol="+symbol)
	if err != nil {
		return OrderBook{}, err
	}
	var raw struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderBook{}, fmt.Errorf("decode order book: %w", err)
	}
	book := OrderBook{Pair: pair}
	for _, lvl := range raw.Bids {
		if len(lvl) >= 2 {
			book.Bids = append(book.Bids, OrderBookEntry{Rate: parseFloat(lvl[0]), Amount: parseFloat(lvl[1])})
		}
	}
	for _, lvl := range raw.Asks {
		if len(lvl) >= 2 {
			book.Asks = append(book.Asks, OrderBookEntry{Rate: parseFloat(lvl[0]), Amount: parseFloat(lvl[1])})
		}
	}
	return book, nil
}

func (g *RestGateway) GetTicker(ctx context.Context, pair string) (Ticker, error) {
	symbol, err := g.symbol(pair)
	if err != nil {
		return Ticker{}, err
	}
	body, err := g.doPublic(ctx, "/api/v3/ticker/bookTicker?symbol="+symbol)
	if err != nil {
		return Ticker{}, err
	}
	var raw struct {
		Bid string `json:"bidPrice"`
		Ask string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	bid := parseFloat(raw.Bid)
	ask := parseFloat(raw.Ask)
	return Ticker{
		Pair: pair,
		Last: (bid + ask) / 2,
		Bid:  bid,
		Ask:  ask,
		Time: time.Now(),
	}, nil
}

func (g *RestGateway) GetMaxLeverage(pair string) float64 { return g.cfg.MaxLeverage }

func (g *RestGateway) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := g.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	out := make([]Balance, 0, len(raw.Balances))
	for _, b := range raw.Balances {
		if free := parseFloat(b.Free); free > 0 {
			out = append(out, Balance{Currency: b.Asset, Available: free})
		}
	}
	return out, nil
}

// GetMarginPositions reports nothing: this is a spot-only gateway. Spot
// holdings are reconciled through GetBalances.
func (g *RestGateway) GetMarginPositions(ctx context.Context) ([]MarginPositionInfo, error) {
	return nil, nil
}

// doSigned signs the query with the account secret and performs the request.
func (g *RestGateway) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(g.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), g.cfg.APISecret))

	encoded := params.Encode()
	endpoint := g.cfg.BaseURL + path
	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		// Signed params go in the query string for GET/DELETE.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", g.cfg.APIKey)
	return g.do(req)
}

func (g *RestGateway) doPublic(ctx context.Context, pathAndQuery string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+pathAndQuery, nil)
	if err != nil {
		return nil, err
	}
	return g.do(req)
}

func (g *RestGateway) do(req *http.Request) ([]byte, error) {
	res, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s status %d: %s", req.Method, req.URL.Path, res.StatusCode, string(body))
	}
	return body, nil
}

func mapStatus(s string) OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return StatusNew
	case "PARTIALLY_FILLED":
		return StatusOpen
	case "FILLED":
		return StatusFilled
	case "CANCELED", "EXPIRED":
		return StatusCanceled
	case "REJECTED":
		return StatusRejected
	default:
		return StatusOpen
	}
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
