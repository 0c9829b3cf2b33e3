package limits

// Add-on keys that contribute to effective limits.
const (
	AddonExtraConcurrency = "extra_concurrency"
	AddonExtraPhoneNumber = "extra_phone_number"
)

// FallbackConcurrency is the ceiling for a workspace whose plan code is unknown
// or missing. Admission degrades to one call, never to unlimited.
const FallbackConcurrency = 1

// Plan is the base allowance of a billing plan.
type Plan struct {
	Code                 string `json:"code"`
	BaseConcurrency      int    `json:"base_concurrency"`
	IncludedPhoneNumbers int    `json:"included_phone_numbers"`
}

// AddonUnit is what one unit of an add-on adds.
type AddonUnit struct {
	Concurrency  int `json:"concurrency"`
	PhoneNumbers int `json:"phone_numbers"`
}

// PlanTable maps plan codes and add-on keys to allowances.
// Changing a value means publishing a new Version.
type PlanTable struct {
	Version  string
	Plans    map[string]Plan
	Addons   map[string]AddonUnit
	Fallback Plan
}

// DefaultPlanTable is the current production table.
func DefaultPlanTable() PlanTable {
	return PlanTable{
		Version: "2024-06",
		Plans: map[string]Plan{
			"starter": {Code: "starter", BaseConcurrency: 1, IncludedPhoneNumbers: 1},
			"growth":  {Code: "growth", BaseConcurrency: 4, IncludedPhoneNumbers: 2},
			"scale":   {Code: "scale", BaseConcurrency: 10, IncludedPhoneNumbers: 5},
		},
		Addons: map[string]AddonUnit{
			AddonExtraConcurrency: {Concurrency: 1},
			AddonExtraPhoneNumber: {PhoneNumbers: 1},
		},
		Fallback: Plan{Code: "fallback", BaseConcurrency: FallbackConcurrency, IncludedPhoneNumbers: 1},
	}
}

// Plan resolves code, reporting false when the fallback was used.
func (t PlanTable) Plan(code string) (Plan, bool) {
	if p, ok := t.Plans[code]; ok {
		return p, true
	}
	return t.Fallback, false
}
