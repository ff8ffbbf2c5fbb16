// Package trust maintains the per-company trust score that gates access to
// higher-risk payment channels.
package trust

import (
	"context"
	"database/sql"
	"math"
	"time"

	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/common/metrics"
)

// Adjuster nudges a bounded company trust score after each processor-routed
// payment outcome. Manual cash/check payments never touch it.
type Adjuster struct {
	db     *sql.DB
	cfg    config.TrustConfig
	logger logger.Logger
}

func NewAdjuster(db *sql.DB, cfg config.TrustConfig, log logger.Logger) *Adjuster {
	return &Adjuster{
		db:     db,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "trust"}),
	}
}

// Reward raises the company score after a successful processor payment.
// Best-effort: failures are logged and swallowed so they can never fail the
// payment itself.
func (a *Adjuster) Reward(ctx context.Context, companyID string, amountCents int64) {
	a.adjust(ctx, companyID, a.stepFor(amountCents))
	metrics.TrustAdjustments.WithLabelValues("reward").Inc()
}

// Penalize lowers the company score after a declined processor payment.
func (a *Adjuster) Penalize(ctx context.Context, companyID string, amountCents int64) {
	a.adjust(ctx, companyID, -a.stepFor(amountCents))
	metrics.TrustAdjustments.WithLabelValues("penalize").Inc()
}

// stepFor scales the base step by the payment size on a log curve so one
// large payment cannot dominate the score.
func (a *Adjuster) stepFor(amountCents int64) float64 {
	if amountCents <= 0 {
		return 0
	}
	dollars := float64(amountCents) / 100
	scale := math.Log1p(dollars) / math.Log1p(1000)
	if scale > 2 {
		scale = 2
	}
	return a.cfg.BaseStep * scale
}

func (a *Adjuster) adjust(ctx context.Context, companyID string, delta float64) {
	query := `
		INSERT INTO company_trust_scores (company_id, score, last_adjusted_at)
		VALUES ($1, LEAST(GREATEST($2 + $3, $4), $5), NOW())
		ON CONFLICT (company_id) DO UPDATE
		SET score = LEAST(GREATEST(company_trust_scores.score + $3, $4), $5),
		    last_adjusted_at = NOW()`

	_, err := a.db.ExecContext(ctx, query,
		companyID, a.cfg.InitialScore, delta, a.cfg.MinScore, a.cfg.MaxScore)
	if err != nil {
		a.logger.Warn("trust score adjustment failed", map[string]interface{}{
			"companyId": companyID,
			"delta":     delta,
			"error":     err.Error(),
		})
	}
}

// Score returns the company's current trust score, falling back to the
// configured initial score when no row exists.
func (a *Adjuster) Score(ctx context.Context, companyID string) (float64, error) {
	var score float64
	err := a.db.QueryRowContext(ctx,
		`SELECT score FROM company_trust_scores WHERE company_id = $1`, companyID).Scan(&score)
	if err == sql.ErrNoRows {
		return a.cfg.InitialScore, nil
	}
	if err != nil {
		return 0, err
	}
	return score, nil
}

// LastAdjusted returns when the score last moved, zero time when never.
func (a *Adjuster) LastAdjusted(ctx context.Context, companyID string) (time.Time, error) {
	var ts time.Time
	err := a.db.QueryRowContext(ctx,
		`SELECT last_adjusted_at FROM company_trust_scores WHERE company_id = $1`, companyID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}
