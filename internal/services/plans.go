package services

import (
	"fmt"
	"os"

	"payment-api/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Plan is a subscription tier with a fixed price and duration.
// DurationDays is nil only for the lifetime tier.
type Plan struct {
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	DurationDays *int            `json:"duration_days"`
	Price        decimal.Decimal `json:"price"`
	Description  string          `json:"description"`
	Features     []string        `json:"features"`
	Savings      string          `json:"savings,omitempty"`
}

// IsLifetime reports whether the plan grants permanent membership.
func (p Plan) IsLifetime() bool {
	return p.Type == models.MembershipLifetime
}

// PlanCatalog is the static tier lookup table.
type PlanCatalog struct {
	plans []Plan
	index map[string]Plan
}

func days(n int) *int { return &n }

// DefaultPlanCatalog returns the built-in tiers.
func DefaultPlanCatalog() *PlanCatalog {
	catalog, err := NewPlanCatalog([]Plan{
		{
			Type:         "3_months",
			Name:         "3-Month Membership",
			DurationDays: days(90),
			Price:        decimal.RequireFromString("29.99"),
			Description:  "Three months of full access to every audio track",
			Features:     []string{"All cycle audio unlocked", "High quality audio", "Personalized recommendations", "No ads"},
		},
		{
			Type:         "1_year",
			Name:         "1-Year Membership",
			DurationDays: days(365),
			Price:        decimal.RequireFromString("99.99"),
			Description:  "One year of full access, better value",
			Features:     []string{"All cycle audio unlocked", "High quality audio", "Personalized recommendations", "No ads", "Priority support", "Early access to new features"},
			Savings:      "Save 17% compared to the 3-month plan",
		},
		{
			Type:         models.MembershipLifetime,
			Name:         "Lifetime Membership",
			DurationDays: nil,
			Price:        decimal.RequireFromString("299.99"),
			Description:  "Pay once, keep every feature forever",
			Features:     []string{"All audio unlocked forever", "High quality audio", "Personalized recommendations", "No ads", "Priority support", "Early access to new features", "Free lifetime updates", "Member badge"},
			Savings:      "Save 75% compared to the yearly plan",
		},
	})
	if err != nil {
		panic(err)
	}
	return catalog
}

// NewPlanCatalog validates plans and builds the lookup table.
func NewPlanCatalog(plans []Plan) (*PlanCatalog, error) {
	c := &PlanCatalog{index: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if p.Type == "" {
			return nil, fmt.Errorf("plan without type")
		}
		if _, dup := c.index[p.Type]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Type)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("plan %q: price must be positive", p.Type)
		}
		if !p.Price.Equal(p.Price.Round(2)) {
			return nil, fmt.Errorf("plan %q: price has more than two decimals", p.Type)
		}
		if p.IsLifetime() {
			p.DurationDays = nil
		} else if p.DurationDays == nil || *p.DurationDays <= 0 {
			return nil, fmt.Errorf("plan %q: duration_days is required for non-lifetime tiers", p.Type)
		}
		c.plans = append(c.plans, p)
		c.index[p.Type] = p
	}
	return c, nil
}

// Lookup returns the plan for a subscription type.
func (c *PlanCatalog) Lookup(subscriptionType string) (Plan, bool) {
	p, ok := c.index[subscriptionType]
	return p, ok
}

// Plans returns the tiers in catalog order.
func (c *PlanCatalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

type planFile struct {
	Plans []struct {
		Type         string   `yaml:"type"`
		Name         string   `yaml:"name"`
		DurationDays *int     `yaml:"duration_days"`
		Price        string   `yaml:"price"`
		Description  string   `yaml:"description"`
		Features     []string `yaml:"features"`
		Savings      string   `yaml:"savings"`
	} `yaml:"plans"`
}

// LoadPlanCatalog reads tiers from a YAML file; an empty path yields the defaults.
func LoadPlanCatalog(path string) (*PlanCatalog, error) {
	if path == "" {
		return DefaultPlanCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}

	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plans file: %w", err)
	}

	plans := make([]Plan, 0, len(file.Plans))
	for _, fp := range file.Plans {
		price, err := decimal.NewFromString(fp.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %q: invalid price %q: %w", fp.Type, fp.Price, err)
		}
		plans = append(plans, Plan{
			Type:         fp.Type,
			Name:         fp.Name,
			DurationDays: fp.DurationDays,
			Price:        price,
			Description:  fp.Description,
			Features:     fp.Features,
			Savings:      fp.Savings,
		})
	}
	return NewPlanCatalog(plans)
}
