package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// keyRe matches GFS 0.25° pgrb2 object keys. Groups: year, month, day, run
// hour, run hour again (tHHz), forecast hour.
var keyRe = regexp.MustCompile(`^gfs\.(\d{4})(\d{2})(\d{2})/(\d{2})/atmos/gfs\.t(\d{2})z\.pgrb2\.0p25\.f(\d+)$`)

// maxForecastHour bounds the forecast hour so ValidTime stays representable.
const maxForecastHour = 99_999_999

// OutputExt is the file extension of published tables.
const OutputExt = "pq"

// ObjectKey identifies a source object.
type ObjectKey struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

func (o ObjectKey) String() string {
	return o.Bucket + "/" + o.Key
}

// ForecastIdentity is the model run and forecast step encoded in a key.
type ForecastIdentity struct {
	RunDate      time.Time
	ForecastHour int

	// hourDigits is the forecast hour as written in the key.
	hourDigits string
}

// ParseObjectKey extracts the forecast identity from a GFS object key.
// It returns false for keys that are not GFS 0.25° forecast files; that is a
// skip, not an error.
func ParseObjectKey(key string) (ForecastIdentity, bool) {
	m := keyRe.FindStringSubmatch(key)
	if m == nil {
		return ForecastIdentity{}, false
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	fh, err := strconv.Atoi(m[6])
	if err != nil || fh > maxForecastHour {
		return ForecastIdentity{}, false
	}

	run := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range fields; a key like 20211332 is not a run.
	if run.Year() != year || int(run.Month()) != month || run.Day() != day || run.Hour() != hour {
		return ForecastIdentity{}, false
	}

	return ForecastIdentity{RunDate: run, ForecastHour: fh, hourDigits: m[6]}, true
}

// ValidTime is the time the forecast values apply to.
func (f ForecastIdentity) ValidTime() time.Time {
	// Whole days go through AddDate so large hours cannot overflow a Duration.
	days, hours := f.ForecastHour/24, f.ForecastHour%24
	return f.RunDate.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
}

// RunLabel formats the run date as YYYY-MM-DD-HH.
func (f ForecastIdentity) RunLabel() string {
	return f.RunDate.Format("2006-01-02-15")
}

// HourLabel is the forecast hour as it appeared in the source key.
func (f ForecastIdentity) HourLabel() string {
	if f.hourDigits == "" {
		return fmt.Sprintf("%03d", f.ForecastHour)
	}
	return f.hourDigits
}

// OutputKey is the destination key of the table built from this forecast.
func (f ForecastIdentity) OutputKey(ext string) string {
	return fmt.Sprintf("run=%s/f=%s/data.%s", f.RunLabel(), f.HourLabel(), ext)
}
