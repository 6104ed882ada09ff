package ntime

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// layout has fixed width fractions so stored timestamps sort lexically.
const layout = "2006-01-02T15:04:05.000000000Z07:00"

// NTime represents a nullable time.Time.
// It can be used a scan destination and can be marshalled to JSON.
type NTime struct {
	time    time.Time
	isValid bool // false when Time is null
}

// UnmarshalJSON parses a quoted RFC3339 time string, or null, into an NTime.
func (nt *NTime) UnmarshalJSON(b []byte) error {
	var raw = string(b)
	if raw == "null" {
		*nt = NTime{}
		return nil
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("ntime: %s isn't a quoted timestamp", raw)
	}
	parsedTime, err := time.Parse(time.RFC3339Nano, raw[1:len(raw)-1])
	if err != nil {
		return err
	}
	*nt = NTime{parsedTime.UTC(), true}
	return nil
}

// MarshalJSON implements the Marshaller interface and operates on values rather than pointers, given NTime's heft.
func (nt NTime) MarshalJSON() ([]byte, error) {
	if nt.isValid {
		return []byte(fmt.Sprintf("%q", nt.time.UTC().Format(layout))), nil
	}
	return []byte("null"), nil
}

// Scan implements the Scanner interface.
// SQLite hands back either time.Time, for columns declared as datetime, or the stored text.
func (nt *NTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*nt = NTime{}
	case time.Time:
		*nt = NTime{v.UTC(), true}
	case string:
		return nt.parse(v)
	case []byte:
		return nt.parse(string(v))
	default:
		return fmt.Errorf("ntime: can't scan %T", value)
	}
	return nil
}

func (nt *NTime) parse(value string) error {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return err
	}
	*nt = NTime{parsed.UTC(), true}
	return nil
}

// Value implements the driver Valuer interface.
func (nt NTime) Value() (driver.Value, error) {
	if nt.isValid {
		return driver.Value(nt.time.UTC().Format(layout)), nil
	}
	return nil, nil
}

func Now() NTime {
	return NTime{time: time.Now().UTC(), isValid: true}
}

// From wraps a time.Time; the zero time is treated as null.
func From(t time.Time) NTime {
	return NTime{time: t.UTC(), isValid: !t.IsZero()}
}

func (nt NTime) Time() time.Time {
	return nt.time
}

func (nt NTime) IsValid() bool {
	return nt.isValid
}

func (nt *NTime) Before(compared NTime) bool {
	return nt.time.Before(compared.time)
}
