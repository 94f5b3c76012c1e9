package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on pointer receivers; Value is
// on value receivers.
var (
	_ sql.Scanner   = (*DecisionDetails)(nil)
	_ driver.Valuer = DecisionDetails{}
	_ sql.Scanner   = (*WeatherSnapshot)(nil)
	_ driver.Valuer = WeatherSnapshot{}
	_ sql.Scanner   = (*RunStatePayload)(nil)
	_ driver.Valuer = RunStatePayload{}
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Scan implements sql.Scanner.
func (d *DecisionDetails) Scan(value any) error { return scanJSONB(d, value) }

// Value implements driver.Valuer.
func (d DecisionDetails) Value() (driver.Value, error) {
	if d.Watering.Notes == nil {
		d.Watering.Notes = []string{}
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (w *WeatherSnapshot) Scan(value any) error { return scanJSONB(w, value) }

// Value implements driver.Valuer.
func (w WeatherSnapshot) Value() (driver.Value, error) {
	if w.Daily == nil {
		w.Daily = []DailyForecast{}
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner.
func (p *RunStatePayload) Scan(value any) error { return scanJSONB(p, value) }

// Value implements driver.Valuer.
func (p RunStatePayload) Value() (driver.Value, error) { return json.Marshal(p) }
