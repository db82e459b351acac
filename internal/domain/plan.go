// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the static mapping from a plan tier
// to its numeric limits and feature flags.
package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Plan is the pricing tier a user is subscribed to.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanStandard Plan = "STANDARD"
	PlanPro      Plan = "PRO"
)

// Feature is a boolean capability gated by plan.
type Feature string

const (
	FeatureAnalytics    Feature = "analytics"
	FeatureScheduling   Feature = "scheduling"
	FeatureTemplates    Feature = "templates"
	FeatureCustomDomain Feature = "customDomain"
)

// CampaignFeatures lists the campaign feature flags of a plan.
type CampaignFeatures struct {
	Analytics    bool `json:"analytics"`
	Scheduling   bool `json:"scheduling"`
	Templates    bool `json:"templates"`
	CustomDomain bool `json:"customDomain"`
}

// CampaignQuota holds the campaign limits of a plan.
type CampaignQuota struct {
	Enabled                  bool             `json:"enabled"`
	MaxCampaignsPerMonth     int              `json:"maxCampaignsPerMonth"`
	MaxRecipientsPerCampaign int              `json:"maxRecipientsPerCampaign"`
	Features                 CampaignFeatures `json:"features"`
}

// APIAccess controls which parts of the public API a plan unlocks.
type APIAccess struct {
	Analytics     bool `json:"analytics"`
	Logs          bool `json:"logs"`
	DateFiltering bool `json:"dateFiltering"`
	Metadata      bool `json:"metadata"`
	MaxPageSize   int  `json:"maxPageSize"`
}

// PlanQuota is the full set of limits for one plan tier.
type PlanQuota struct {
	MaxForms               int           `json:"maxForms"`
	MaxSubmissionsPerMonth int           `json:"maxSubmissionsPerMonth"`
	Campaigns              CampaignQuota `json:"campaigns"`
	API                    APIAccess     `json:"api"`
}

var planQuotas = map[Plan]PlanQuota{
	PlanFree: {
		MaxForms:               1,
		MaxSubmissionsPerMonth: 50,
		Campaigns: CampaignQuota{
			Enabled: false,
		},
		API: APIAccess{
			MaxPageSize: 50,
		},
	},
	PlanStandard: {
		MaxForms:               5,
		MaxSubmissionsPerMonth: 5000,
		Campaigns: CampaignQuota{
			Enabled:                  true,
			MaxCampaignsPerMonth:     3,
			MaxRecipientsPerCampaign: 500,
			Features: CampaignFeatures{
				Analytics:  true,
				Scheduling: true,
			},
		},
		API: APIAccess{
			Analytics:   true,
			Logs:        true,
			MaxPageSize: 100,
		},
	},
	PlanPro: {
		MaxForms:               10,
		MaxSubmissionsPerMonth: 10000,
		Campaigns: CampaignQuota{
			Enabled:                  true,
			MaxCampaignsPerMonth:     10,
			MaxRecipientsPerCampaign: 10000,
			Features: CampaignFeatures{
				Analytics:    true,
				Scheduling:   true,
				Templates:    true,
				CustomDomain: true,
			},
		},
		API: APIAccess{
			Analytics:     true,
			Logs:          true,
			DateFiltering: true,
			Metadata:      true,
			MaxPageSize:   500,
		},
	},
}

// ParsePlan converts a stored plan value into a Plan.
// Unknown values are an error rather than a silent default.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", Errorf(EINTERNAL, "plan.parse", "unknown plan %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	_, ok := planQuotas[p]
	return ok
}

// DisplayName returns the plan name for user-facing text ("Free", "Pro").
func (p Plan) DisplayName() string {
	return cases.Title(language.English).String(strings.ToLower(string(p)))
}

// GetQuotaByPlan returns the limits for a plan.
//
// An unknown plan is an error. Defaulting here would grant whatever the
// default tier allows to a user whose plan value is corrupt.
func GetQuotaByPlan(p Plan) (PlanQuota, error) {
	q, ok := planQuotas[p]
	if !ok {
		return PlanQuota{}, Errorf(EINTERNAL, "plan.quota", "no quota defined for plan %q", string(p))
	}
	return q, nil
}

// HasFeature reports whether the plan unlocks feature f.
func (q PlanQuota) HasFeature(f Feature) (bool, error) {
	switch f {
	case FeatureAnalytics:
		return q.Campaigns.Features.Analytics, nil
	case FeatureScheduling:
		return q.Campaigns.Features.Scheduling, nil
	case FeatureTemplates:
		return q.Campaigns.Features.Templates, nil
	case FeatureCustomDomain:
		return q.Campaigns.Features.CustomDomain, nil
	default:
		return false, Invalid("plan.feature", fmt.Sprintf("unknown feature %q", string(f)))
	}
}
