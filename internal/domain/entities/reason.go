package entities

// DefaultEstimateMinutes is used when a visit reason is not in the estimate
// table (free-text complaints, misspelled keys).
const DefaultEstimateMinutes = 15

// reasonEstimateMinutes holds per-reason service estimates based on typical
// urgent care guidance.
// TODO: replace with estimates derived from the clinic's own visit durations
// once enough checkouts have been recorded.
var reasonEstimateMinutes = map[string]int{
	"Flu-like symptoms":                 20,
	"Minor laceration":                  25,
	"COVID-19 test":                     10,
	"Common infections (ear, pink eye)": 15,
	"Sore throat / strep check":         15,
	"Sprain/strain":                     30,
	"Rash or allergic reaction (mild)":  15,
	"Urinary symptoms (possible UTI)":   20,
	"Medication refill/quick consult":   10,
}

// EstimateMinutes returns the estimated in-room service minutes for a visit
// reason key.
func EstimateMinutes(reason string) int {
	if minutes, ok := reasonEstimateMinutes[reason]; ok {
		return minutes
	}
	return DefaultEstimateMinutes
}

// KnownReasons returns the reason keys the clinic publishes on its intake
// form, for presentation layers that render a picker.
func KnownReasons() []string {
	reasons := make([]string, 0, len(reasonEstimateMinutes))
	for reason := range reasonEstimateMinutes {
		reasons = append(reasons, reason)
	}
	return reasons
}
