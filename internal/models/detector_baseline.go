package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DetectorBaseline holds the running mean/variance the async anomaly
// detector uses for z-score scoring, one row per (tenant, agent, metric).
// It is updated after every async scoring pass (Welford's online algorithm).
type DetectorBaseline struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AgentID  string    `gorm:"not null;index" json:"agent_id"`
	Metric   string    `gorm:"not null" json:"metric"`

	SampleCount int64   `gorm:"not null;default:0" json:"sample_count"`
	Mean        float64 `gorm:"not null;default:0" json:"mean"`
	M2          float64 `gorm:"not null;default:0" json:"m2"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DetectorBaseline) TableName() string { return "detector_baselines" }

// Variance returns the population variance of the running sample.
func (d *DetectorBaseline) Variance() float64 {
	if d.SampleCount < 2 {
		return 0
	}
	return d.M2 / float64(d.SampleCount)
}

// Observe folds a new sample into the baseline using Welford's algorithm
// and returns the z-score of the observation against the pre-update mean.
func (d *DetectorBaseline) Observe(value float64) float64 {
	d.SampleCount++
	delta := value - d.Mean
	d.Mean += delta / float64(d.SampleCount)
	delta2 := value - d.Mean
	d.M2 += delta * delta2

	variance := d.Variance()
	if variance <= 0 {
		return 0
	}
	return delta / math.Sqrt(variance)
}
