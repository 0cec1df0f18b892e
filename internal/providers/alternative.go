package providers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	xhttp "github.com/nimazasinich/crypto-dt-source-sub019/pkg/http"
)

// Alternative serves the market-wide fear/greed sentiment index from
// alternative.me.
type Alternative struct {
	desc    *models.ProviderDescriptor
	client  *xhttp.Client
	tracker *RateTracker
}

func NewAlternative(desc *models.ProviderDescriptor, tracker *RateTracker) *Alternative {
	return &Alternative{
		desc:    desc,
		client:  xhttp.NewClient(xhttp.WithTimeout(desc.Timeout)),
		tracker: tracker,
	}
}

func (p *Alternative) Name() string { return p.desc.Name }

func (p *Alternative) Fetch(ctx context.Context, kind models.MetricKind, _ string) (*models.MetricValue, error) {
	if kind != models.MetricSentiment {
		return nil, fmt.Errorf("alternative: unsupported metric %s", kind)
	}
	if !p.tracker.Allow(p.desc.Name, p.desc.RateCapacity, p.desc.RateRefill) {
		return nil, ErrRateLimited
	}

	var resp struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := p.client.GetJSON(ctx, p.desc.BaseURL+"/fng/", nil, nil, &resp); err != nil {
		return nil, mapStatusErr(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("alternative: empty sentiment response")
	}

	value, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("alternative: malformed value %q: %w", resp.Data[0].Value, err)
	}

	return &models.MetricValue{
		Kind: models.MetricSentiment,
		Sentiment: &models.SentimentIndex{
			Value:          value,
			Classification: resp.Data[0].Classification,
		},
	}, nil
}
