package dto

import (
	"encoding/json"
	"fmt"

	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

// DayValue accepts either a day number or an upper-case day name such as "MONDAY".
type DayValue int

// UnmarshalJSON implements json.Unmarshaler.
func (d *DayValue) UnmarshalJSON(raw []byte) error {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		*d = DayValue(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return fmt.Errorf("day must be a number or a day name")
	}
	day := scheduler.ParseDay(name)
	if day == 0 {
		return fmt.Errorf("unknown day %q", name)
	}
	*d = DayValue(day)
	return nil
}
