package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/logger"
)

func testTrustConfig() config.TrustConfig {
	return config.TrustConfig{
		MinScore:     0,
		MaxScore:     100,
		InitialScore: 50,
		BaseStep:     2,
	}
}

func newTestAdjuster(t *testing.T) (*Adjuster, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	a := NewAdjuster(db, testTrustConfig(), logger.NewTestLogger(t))
	return a, mock, func() { db.Close() }
}

func TestAdjuster_StepFor(t *testing.T) {
	a := NewAdjuster(nil, testTrustConfig(), logger.NewNoOpLogger())

	t.Run("zero and negative amounts are a no-op", func(t *testing.T) {
		assert.Equal(t, 0.0, a.stepFor(0))
		assert.Equal(t, 0.0, a.stepFor(-500))
	})

	t.Run("$1000 payment earns exactly the base step", func(t *testing.T) {
		assert.InDelta(t, 2.0, a.stepFor(1000_00), 0.001)
	})

	t.Run("step grows with amount", func(t *testing.T) {
		small := a.stepFor(10_00)
		medium := a.stepFor(500_00)
		large := a.stepFor(5000_00)
		assert.Less(t, small, medium)
		assert.Less(t, medium, large)
	})

	t.Run("scale is capped at twice the base step", func(t *testing.T) {
		huge := a.stepFor(100_000_000_00)
		assert.LessOrEqual(t, huge, 2*testTrustConfig().BaseStep)
	})
}

func TestAdjuster_Reward(t *testing.T) {
	a, mock, cleanup := newTestAdjuster(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO company_trust_scores`).
		WithArgs("company-1", 50.0, a.stepFor(100_00), 0.0, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a.Reward(context.Background(), "company-1", 100_00)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjuster_Penalize(t *testing.T) {
	a, mock, cleanup := newTestAdjuster(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO company_trust_scores`).
		WithArgs("company-1", 50.0, -a.stepFor(100_00), 0.0, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a.Penalize(context.Background(), "company-1", 100_00)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Adjustments are best-effort: a database failure is swallowed so the
// payment that triggered it still succeeds.
func TestAdjuster_AdjustFailureSwallowed(t *testing.T) {
	a, mock, cleanup := newTestAdjuster(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO company_trust_scores`).
		WillReturnError(errors.New("connection reset"))

	assert.NotPanics(t, func() {
		a.Reward(context.Background(), "company-1", 100_00)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjuster_Score(t *testing.T) {
	a, mock, cleanup := newTestAdjuster(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT score FROM company_trust_scores`).
		WithArgs("company-1").
		WillReturnRows(sqlmock.NewRows([]string{"score"}).AddRow(72.5))

	score, err := a.Score(context.Background(), "company-1")

	require.NoError(t, err)
	assert.Equal(t, 72.5, score)
}

func TestAdjuster_Score_DefaultsToInitial(t *testing.T) {
	a, mock, cleanup := newTestAdjuster(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT score FROM company_trust_scores`).
		WithArgs("company-new").
		WillReturnRows(sqlmock.NewRows([]string{"score"}))

	score, err := a.Score(context.Background(), "company-new")

	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
}
