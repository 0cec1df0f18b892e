package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	xhttp "github.com/nimazasinich/crypto-dt-source-sub019/pkg/http"
)

// Binance serves price and OHLC metrics from the Binance public REST API.
type Binance struct {
	desc    *models.ProviderDescriptor
	client  *xhttp.Client
	tracker *RateTracker
}

func NewBinance(desc *models.ProviderDescriptor, tracker *RateTracker) *Binance {
	return &Binance{
		desc:    desc,
		client:  xhttp.NewClient(xhttp.WithTimeout(desc.Timeout)),
		tracker: tracker,
	}
}

func (p *Binance) Name() string { return p.desc.Name }

func (p *Binance) Fetch(ctx context.Context, kind models.MetricKind, symbol string) (*models.MetricValue, error) {
	if !p.tracker.Allow(p.desc.Name, p.desc.RateCapacity, p.desc.RateRefill) {
		return nil, ErrRateLimited
	}

	switch kind {
	case models.MetricPrice:
		return p.fetchPrice(ctx, symbol)
	case models.MetricOHLC:
		return p.fetchOHLC(ctx, symbol)
	default:
		return nil, fmt.Errorf("binance: unsupported metric %s", kind)
	}
}

func (p *Binance) fetchPrice(ctx context.Context, symbol string) (*models.MetricValue, error) {
	var resp struct {
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		QuoteVolume        string `json:"quoteVolume"`
	}
	err := p.client.GetJSON(ctx, p.desc.BaseURL+"/api/v3/ticker/24hr", map[string]string{
		"symbol": pairFor(symbol),
	}, nil, &resp)
	if err != nil {
		return nil, mapStatusErr(err)
	}

	price, err := strconv.ParseFloat(resp.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: malformed price %q: %w", resp.LastPrice, err)
	}
	change, _ := strconv.ParseFloat(resp.PriceChangePercent, 64)
	vol, _ := strconv.ParseFloat(resp.QuoteVolume, 64)

	return &models.MetricValue{
		Kind:   models.MetricPrice,
		Symbol: symbol,
		Quote: &models.Quote{
			Symbol:    symbol,
			Price:     price,
			Change24h: change,
			Volume24h: vol,
		},
	}, nil
}

func (p *Binance) fetchOHLC(ctx context.Context, symbol string) (*models.MetricValue, error) {
	// klines rows: [openTime, open, high, low, close, volume, ...]
	var rows [][]interface{}
	err := p.client.GetJSON(ctx, p.desc.BaseURL+"/api/v3/klines", map[string]string{
		"symbol":   pairFor(symbol),
		"interval": "1h",
		"limit":    "24",
	}, nil, &rows)
	if err != nil {
		return nil, mapStatusErr(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("binance: empty klines for %s", symbol)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		ms, ok := r[0].(float64)
		if !ok {
			continue
		}
		c := models.Candle{Bucket: msTime(int64(ms))}
		if c.Open, err = klineField(r[1]); err != nil {
			return nil, fmt.Errorf("binance: malformed kline: %w", err)
		}
		c.High, _ = klineField(r[2])
		c.Low, _ = klineField(r[3])
		c.Close, _ = klineField(r[4])
		c.Volume, _ = klineField(r[5])
		candles = append(candles, c)
	}
	return &models.MetricValue{Kind: models.MetricOHLC, Symbol: symbol, Candles: candles}, nil
}

func klineField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

func pairFor(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

func msTime(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
}
