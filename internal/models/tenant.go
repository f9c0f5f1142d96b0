package models

// PlanTier is the billing tier a Tenant is subscribed to.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanTeam       PlanTier = "team"
	PlanEnterprise PlanTier = "enterprise"
)

// Tenant is the billing/ownership root. Tenant CRUD lives outside this
// repository (external collaborator); the gateway only reads it.
type Tenant struct {
	BaseModel
	Name string   `gorm:"not null" json:"name"`
	Plan PlanTier `gorm:"not null;default:free" json:"plan"`
}

func (Tenant) TableName() string { return "tenants" }
