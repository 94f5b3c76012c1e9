package types

// DailyForecast is one day of the provider's daily aggregate forecast. A nil
// value means the provider had no figure for that day.
type DailyForecast struct {
	Date             string   `json:"date,omitempty"` // YYYY-MM-DD as reported by the provider
	TemperatureMin   *float64 `json:"temperature_min"`
	TemperatureMax   *float64 `json:"temperature_max"`
	PrecipitationSum *float64 `json:"precipitation_sum"`
}

// MinTemp returns the minimum temperature and whether it was reported.
func (d DailyForecast) MinTemp() (float64, bool) { return value(d.TemperatureMin) }

// MaxTemp returns the maximum temperature and whether it was reported.
func (d DailyForecast) MaxTemp() (float64, bool) { return value(d.TemperatureMax) }

// Rain returns the precipitation sum in mm and whether it was reported.
func (d DailyForecast) Rain() (float64, bool) { return value(d.PrecipitationSum) }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

func value(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Forecast is the weather collaborator's answer for a coordinate pair.
// Daily[0] is today, Daily[1] tomorrow, and so on. Error carries a fetch
// failure as data; a Forecast with an Error may still be empty.
type Forecast struct {
	Daily []DailyForecast `json:"daily"`
	Error string          `json:"error,omitempty"`
}

// Day returns the forecast for day offset i (0 = today) and whether it exists.
func (f *Forecast) Day(i int) (DailyForecast, bool) {
	if f == nil || i < 0 || i >= len(f.Daily) {
		return DailyForecast{}, false
	}
	return f.Daily[i], true
}

// Today is shorthand for Day(0).
func (f *Forecast) Today() (DailyForecast, bool) { return f.Day(0) }

// Tomorrow is shorthand for Day(1).
func (f *Forecast) Tomorrow() (DailyForecast, bool) { return f.Day(1) }

// Slice returns up to n leading days, used for the snapshot's weather record.
func (f *Forecast) Slice(n int) []DailyForecast {
	if f == nil {
		return nil
	}
	if n > len(f.Daily) {
		n = len(f.Daily)
	}
	out := make([]DailyForecast, n)
	copy(out, f.Daily[:n])
	return out
}
