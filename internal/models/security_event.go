package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DetectionLevel controls how aggressively the security engine reacts to a
// detector firing: monitor only logs, warn downgrades blocking actions
// (block, quarantine, kill) to alert, enforce applies the detector's
// requested action.
type DetectionLevel string

const (
	DetectionLevelMonitor DetectionLevel = "monitor"
	DetectionLevelWarn    DetectionLevel = "warn"
	DetectionLevelEnforce DetectionLevel = "enforce"
)

// SecurityAction is what the engine did in response to a detection, in
// descending precedence: kill > block > quarantine > throttle > redact >
// alert > log.
type SecurityAction string

const (
	SecurityActionKill       SecurityAction = "kill"
	SecurityActionBlock      SecurityAction = "block"
	SecurityActionQuarantine SecurityAction = "quarantine"
	SecurityActionThrottle   SecurityAction = "throttle"
	SecurityActionRedact     SecurityAction = "redact"
	SecurityActionAlert      SecurityAction = "alert"
	SecurityActionLog        SecurityAction = "log"
)

// securityActionRank orders actions by precedence for picking a winner
// across multiple detectors firing on the same request.
var securityActionRank = map[SecurityAction]int{
	SecurityActionKill:       7,
	SecurityActionBlock:      6,
	SecurityActionQuarantine: 5,
	SecurityActionThrottle:   4,
	SecurityActionRedact:     3,
	SecurityActionAlert:      2,
	SecurityActionLog:        1,
}

// HigherPrecedence reports whether a ranks above b.
func HigherPrecedence(a, b SecurityAction) bool {
	return securityActionRank[a] > securityActionRank[b]
}

// SecurityEvent is a durable record of a detector firing, whether or not
// its action was ultimately enforced.
type SecurityEvent struct {
	BaseModel
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AgentID    string    `gorm:"index" json:"agent_id,omitempty"`
	RequestID  string    `gorm:"index;not null" json:"request_id"`

	Detector   string         `gorm:"not null" json:"detector"`
	Score      float64        `gorm:"not null" json:"score"`
	Level      DetectionLevel `gorm:"not null" json:"level"`
	Action     SecurityAction `gorm:"not null" json:"action"`
	Enforced   bool           `gorm:"not null;default:false" json:"enforced"`

	Details datatypes.JSON `json:"details,omitempty"`

	DetectedAt time.Time `gorm:"not null;index" json:"detected_at"`
}

func (SecurityEvent) TableName() string { return "security_events" }
