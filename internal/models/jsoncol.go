package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
)

// Days is an ordered set of ISO weekday numbers (1 = Monday) stored as a JSON array.
type Days []int

// Value implements driver.Valuer.
func (d Days) Value() (driver.Value, error) { return jsonValue(d, "[]") }

// Scan implements sql.Scanner.
func (d *Days) Scan(src interface{}) error { return jsonScan(src, d) }

// Contains reports whether day is part of the set.
func (d Days) Contains(day int) bool {
	for _, v := range d {
		if v == day {
			return true
		}
	}
	return false
}

// Periods is a list of period numbers stored as a JSON array.
type Periods []int

// Value implements driver.Valuer.
func (p Periods) Value() (driver.Value, error) { return jsonValue(p, "[]") }

// Scan implements sql.Scanner.
func (p *Periods) Scan(src interface{}) error { return jsonScan(src, p) }

// Contains reports whether period is part of the list.
func (p Periods) Contains(period int) bool {
	for _, v := range p {
		if v == period {
			return true
		}
	}
	return false
}

// StringList is a JSON encoded list of strings.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) { return jsonValue(l, "[]") }

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error { return jsonScan(src, l) }

func jsonValue(v interface{}, empty string) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case types.JSONText:
		raw = v
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
