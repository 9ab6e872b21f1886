package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/shivamSspirit/volition/internal/domain"
	"github.com/shivamSspirit/volition/internal/service"
	"go.uber.org/zap"
)

// riskExposureLimit caps total unrealized loss a plan will alert past.
var riskExposureLimit = decimal.NewFromInt(-1000)

// Alerter posts operator notifications to a webhook. An empty URL disables
// delivery; alerts are then logged only.
type Alerter struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewAlerter(webhookURL string, logger *zap.Logger) *Alerter {
	return &Alerter{
		client: resty.New(),
		url:    webhookURL,
		logger: logger,
	}
}

// Send delivers the alert, or logs it when delivery is disabled.
func (a *Alerter) Send(ctx context.Context, subject, body string) error {
	if a.url == "" {
		a.logger.Info("alert (webhook disabled)",
			zap.String("subject", subject), zap.String("body", body))
		return nil
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"subject": subject, "body": body}).
		Post(a.url)
	if err != nil {
		return fmt.Errorf("post alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned %s", resp.Status())
	}
	return nil
}

// RegisterBuiltins wires the built-in skills the plan templates reference.
func RegisterBuiltins(r *Registry, world *service.WorldService, memory *service.EpisodicService, alerter *Alerter) {
	r.RegisterFunc("verify_opportunity", "Confirm the triggering belief still holds",
		func(ctx context.Context, params map[string]any) (any, error) {
			desc, _ := params["description"].(string)
			// The opportunity stands only while a supporting belief is alive.
			for _, b := range world.GetBeliefs("") {
				if b.Confidence >= 0.5 && overlaps(b.Content, desc) {
					return map[string]any{"verified": true, "belief_id": b.ID.String()}, nil
				}
			}
			return nil, fmt.Errorf("no supporting belief for %q", desc)
		})

	r.RegisterFunc("assess_risk", "Check open-position exposure against the loss limit",
		func(ctx context.Context, params map[string]any) (any, error) {
			exposure := decimal.Zero
			for _, p := range world.Positions() {
				exposure = exposure.Add(p.UnrealizedPnL())
			}
			if exposure.LessThan(riskExposureLimit) {
				return nil, fmt.Errorf("exposure %s below limit %s", exposure, riskExposureLimit)
			}
			return map[string]any{"exposure": exposure.String(), "within_limit": true}, nil
		})

	r.RegisterFunc("send_alert", "Notify the operator via the alert webhook",
		func(ctx context.Context, params map[string]any) (any, error) {
			desc, _ := params["description"].(string)
			if err := alerter.Send(ctx, "volition alert", desc); err != nil {
				return nil, err
			}
			return map[string]any{"delivered": true}, nil
		})

	r.RegisterFunc("gather_market_data", "Snapshot tracked markets and positions",
		func(ctx context.Context, params map[string]any) (any, error) {
			markets := world.Markets()
			positions := world.Positions()
			return map[string]any{
				"markets":   len(markets),
				"positions": len(positions),
				"summary":   world.Summary(),
			}, nil
		})

	r.RegisterFunc("analyze_data", "Derive movement stats from tracked markets",
		func(ctx context.Context, params map[string]any) (any, error) {
			var movers []string
			for _, m := range world.Markets() {
				change := m.ChangePercent()
				if change.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)) {
					movers = append(movers, fmt.Sprintf("%s %s%%", m.Symbol, change.StringFixed(2)))
				}
			}
			return map[string]any{"movers": movers}, nil
		})

	r.RegisterFunc("analyze_predictions", "Measure forecast calibration",
		func(ctx context.Context, params map[string]any) (any, error) {
			brier, resolved := world.CalibrationScore()
			return map[string]any{"brier": brier, "resolved": resolved}, nil
		})

	r.RegisterFunc("update_memory", "Refresh action patterns and bias detection",
		func(ctx context.Context, params map[string]any) (any, error) {
			patterns := memory.AnalyzePatterns(0)
			biases := memory.DetectBiases(0)
			return map[string]any{"patterns": len(patterns), "biases": len(biases)}, nil
		})
}

// overlaps reports whether the two strings share a word of four or more
// characters. Lexical, like the rest of the matching in this module.
func overlaps(a, b string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if len(w) >= 4 {
			words[w] = true
		}
	}
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if len(w) >= 4 && words[w] {
			return true
		}
	}
	return false
}

var _ domain.SkillExecutor = (*Registry)(nil)
