package gnss

// Report classes emitted by gpsd on the gpspipe -w stream. Only these two
// are cached; everything else on the wire (VERSION, DEVICES, ...) is ignored.
const (
	ClassTPV = "TPV"
	ClassSKY = "SKY"
)

// TPVReport is a gpsd time-position-velocity report. Numeric fields that
// gpsd omits when it has no estimate are pointers so that "absent" and
// "zero" stay distinguishable.
type TPVReport struct {
	Class  string   `json:"class"`
	Mode   int      `json:"mode"` // 0/1 = no fix, 2 = 2D, 3 = 3D
	Time   string   `json:"time,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	AltHAE *float64 `json:"altHAE,omitempty"` // height above ellipsoid, m
	AltMSL *float64 `json:"altMSL,omitempty"` // height above mean sea level, m
	Alt    *float64 `json:"alt,omitempty"`    // legacy altitude field, m
	Speed  *float64 `json:"speed,omitempty"`  // m/s
	Track  *float64 `json:"track,omitempty"`  // course over ground, degrees
	Climb  *float64 `json:"climb,omitempty"`  // m/s
	EPX    *float64 `json:"epx,omitempty"`    // horizontal error estimate, m
	EPV    *float64 `json:"epv,omitempty"`    // vertical error estimate, m
}

// SKYReport is a gpsd satellite-visibility report.
type SKYReport struct {
	Class string `json:"class"`
	NSat  int    `json:"nSat"` // satellites in view
	USat  int    `json:"uSat"` // satellites used in the fix
}

// NormalizedFix is the caller-facing view of the latest fix. It is computed
// fresh on every read and never stored.
type NormalizedFix struct {
	Source           string   `json:"source"`
	FixType          string   `json:"fix_type"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	AltitudeM        *float64 `json:"altitude_m"`
	SpeedMPS         *float64 `json:"speed_mps"`
	TrackDeg         *float64 `json:"track_deg"`
	ClimbMPS         *float64 `json:"climb_mps"`
	TimeUTC          string   `json:"time_utc"`
	SatellitesUsed   int      `json:"satellites_used"`
	SatellitesInView int      `json:"satellites_in_view"`
	ErrHorizontalM   *float64 `json:"error_horizontal_m"`
	ErrVerticalM     *float64 `json:"error_vertical_m"`
}

// FixTypeLabel maps a gpsd fix mode to its human label.
func FixTypeLabel(mode int) string {
	switch mode {
	case 0, 1:
		return "No Fix"
	case 2:
		return "2D Fix"
	case 3:
		return "3D Fix"
	default:
		return "Unknown"
	}
}

// BestAltitude picks the altitude field to report: altHAE, else altMSL,
// else the legacy alt field, else nil. The order is fixed; values are never
// merged or averaged.
func BestAltitude(tpv TPVReport) *float64 {
	if tpv.AltHAE != nil {
		return tpv.AltHAE
	}
	if tpv.AltMSL != nil {
		return tpv.AltMSL
	}
	return tpv.Alt
}

// Normalize converts a raw TPV/SKY pair into the caller-facing record.
// Pure computation, no I/O.
func Normalize(tpv TPVReport, sky SKYReport) NormalizedFix {
	return NormalizedFix{
		Source:           "Realtime gpspipe Stream",
		FixType:          FixTypeLabel(tpv.Mode),
		Latitude:         tpv.Lat,
		Longitude:        tpv.Lon,
		AltitudeM:        BestAltitude(tpv),
		SpeedMPS:         tpv.Speed,
		TrackDeg:         tpv.Track,
		ClimbMPS:         tpv.Climb,
		TimeUTC:          tpv.Time,
		SatellitesUsed:   sky.USat,
		SatellitesInView: sky.NSat,
		ErrHorizontalM:   tpv.EPX,
		ErrVerticalM:     tpv.EPV,
	}
}
