package domain

import "time"

// DailyStatistic is one kiosk's rollup for one calendar day of the fleet
// timezone. Date is midnight UTC of that calendar date so that the key does
// not depend on the zone it was computed in.
type DailyStatistic struct {
	KioskID         string     `json:"kioskId"`
	Date            time.Time  `json:"date"`
	SensorType      SensorType `json:"sensorType"`
	SampleCount     int        `json:"sampleCount"`
	MinTemperature  uint8      `json:"minTemperature"`
	MaxTemperature  uint8      `json:"maxTemperature"`
	MeanTemperature uint8      `json:"meanTemperature"`
	MinHumidity     uint8      `json:"minHumidity"`
	MaxHumidity     uint8      `json:"maxHumidity"`
	MeanHumidity    uint8      `json:"meanHumidity"`
}

// DateKey normalizes a calendar day in loc to the storage key used by
// DailyStatistic.Date.
func DateKey(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the half-open interval [start, end) covering the calendar
// day of key in loc. Days around DST transitions are 23 or 25 hours long.
func DayBounds(key time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := key.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// KioskHistory is one kiosk's entry in the fleet-wide daily view.
type KioskHistory struct {
	KioskID string           `json:"kioskId"`
	Days    []DailyStatistic `json:"days"`
}
