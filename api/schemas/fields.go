package schemas

// Canonical fact names. Source specs map these to paths in their payloads.
const (
	FieldCarrier         = "carrier"
	FieldRegion          = "region"
	FieldRegionCode      = "region_code"
	FieldLineType        = "line_type"
	FieldCountryCode     = "country_code"
	FieldOwnerName       = "owner_name"
	FieldSpamProbability = "spam_probability"
	FieldFraudScore      = "fraud_score"
	FieldReportCount     = "report_count"
	FieldBreachCount     = "breach_count"
	FieldSocialProfiles  = "social_profiles"
	FieldMentions        = "mentions"
)

// List-valued facts feed pattern observations rather than merged scalars.
const (
	// FieldGeoPoints holds [[lat, lon], ...] or [{"lat":..,"lon":..}, ...].
	FieldGeoPoints = "geo_points"
	// FieldActivityHours holds hour-of-day values in [0, 24).
	FieldActivityHours = "activity_hours"
	// FieldActivityTimes holds RFC 3339 strings or unix seconds.
	FieldActivityTimes = "activity_times"
	// FieldBehaviorSamples holds equal-length numeric vectors or flat numeric objects.
	FieldBehaviorSamples = "behavior_samples"
)

// IsListField reports whether name is an observation field.
func IsListField(name string) bool {
	switch name {
	case FieldGeoPoints, FieldActivityHours, FieldActivityTimes, FieldBehaviorSamples:
		return true
	}
	return false
}
