package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	xhttp "github.com/nimazasinich/crypto-dt-source-sub019/pkg/http"
)

// CoinGecko serves price and OHLC metrics from the CoinGecko REST API.
type CoinGecko struct {
	desc    *models.ProviderDescriptor
	client  *xhttp.Client
	tracker *RateTracker
}

func NewCoinGecko(desc *models.ProviderDescriptor, tracker *RateTracker) *CoinGecko {
	return &CoinGecko{
		desc:    desc,
		client:  xhttp.NewClient(xhttp.WithTimeout(desc.Timeout)),
		tracker: tracker,
	}
}

func (p *CoinGecko) Name() string { return p.desc.Name }

func (p *CoinGecko) Fetch(ctx context.Context, kind models.MetricKind, symbol string) (*models.MetricValue, error) {
	if !p.tracker.Allow(p.desc.Name, p.desc.RateCapacity, p.desc.RateRefill) {
		return nil, ErrRateLimited
	}

	switch kind {
	case models.MetricPrice:
		return p.fetchPrice(ctx, symbol)
	case models.MetricOHLC:
		return p.fetchOHLC(ctx, symbol)
	default:
		return nil, fmt.Errorf("coingecko: unsupported metric %s", kind)
	}
}

func (p *CoinGecko) fetchPrice(ctx context.Context, symbol string) (*models.MetricValue, error) {
	id := coinID(symbol)
	var resp map[string]struct {
		USD       float64 `json:"usd"`
		Change24h float64 `json:"usd_24h_change"`
		Vol24h    float64 `json:"usd_24h_vol"`
	}
	err := p.client.GetJSON(ctx, p.desc.BaseURL+"/simple/price", map[string]string{
		"ids":                 id,
		"vs_currencies":       "usd",
		"include_24hr_change": "true",
		"include_24hr_vol":    "true",
	}, p.headers(), &resp)
	if err != nil {
		return nil, mapStatusErr(err)
	}
	q, ok := resp[id]
	if !ok {
		return nil, fmt.Errorf("coingecko: no data for %s", symbol)
	}
	return &models.MetricValue{
		Kind:   models.MetricPrice,
		Symbol: symbol,
		Quote: &models.Quote{
			Symbol:    symbol,
			Price:     q.USD,
			Change24h: q.Change24h,
			Volume24h: q.Vol24h,
		},
	}, nil
}

func (p *CoinGecko) fetchOHLC(ctx context.Context, symbol string) (*models.MetricValue, error) {
	var rows [][]float64 // [ms, o, h, l, c]
	url := fmt.Sprintf("%s/coins/%s/ohlc", p.desc.BaseURL, coinID(symbol))
	err := p.client.GetJSON(ctx, url, map[string]string{
		"vs_currency": "usd",
		"days":        "1",
	}, p.headers(), &rows)
	if err != nil {
		return nil, mapStatusErr(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("coingecko: empty ohlc for %s", symbol)
	}
	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		candles = append(candles, models.Candle{
			Bucket: msTime(int64(r[0])),
			Open:   r[1],
			High:   r[2],
			Low:    r[3],
			Close:  r[4],
		})
	}
	return &models.MetricValue{Kind: models.MetricOHLC, Symbol: symbol, Candles: candles}, nil
}

func (p *CoinGecko) headers() map[string]string {
	if p.desc.APIKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": p.desc.APIKey}
}

// coinID maps common ticker symbols to CoinGecko coin ids.
func coinID(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "BTC":
		return "bitcoin"
	case "ETH":
		return "ethereum"
	case "SOL":
		return "solana"
	case "BNB":
		return "binancecoin"
	case "XRP":
		return "ripple"
	default:
		return strings.ToLower(symbol)
	}
}

func mapStatusErr(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
