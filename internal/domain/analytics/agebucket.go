package analytics

// AgeBucketUnknown labels rows whose birth date is missing or out of range.
const AgeBucketUnknown = "Unknown"

// AgeBucketBound is one inclusive age bucket.
type AgeBucketBound struct {
	Label string
	Min   int
	Max   int
}

// AgeBucketBounds partitions ages 0-120 with no gaps; anything outside falls
// into the Unknown bucket. The boundaries are fixed reporting categories, not
// configuration.
var AgeBucketBounds = []AgeBucketBound{
	{"0-18", 0, 18},
	{"19-30", 19, 30},
	{"31-45", 31, 45},
	{"46-60", 46, 60},
	{"61-75", 61, 75},
	{"76-90", 76, 90},
	{"91-105", 91, 105},
	{"106-120", 106, 120},
}

// AgeBucket maps an age in years to its bucket label.
func AgeBucket(age int) string {
	for _, b := range AgeBucketBounds {
		if age >= b.Min && age <= b.Max {
			return b.Label
		}
	}
	return AgeBucketUnknown
}

// RetentionRate returns returning/registered as a percentage, guarding the
// zero-denominator case with 0.0 rather than NaN.
func RetentionRate(returning, registered int64) float64 {
	if registered == 0 {
		return 0.0
	}
	return float64(returning) / float64(registered) * 100
}
