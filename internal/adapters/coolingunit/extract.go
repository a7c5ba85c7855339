package coolingunit

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrNoTemperature = errors.New("no temperature measurement in response")
	ErrNoHumidity    = errors.New("no humidity measurement in response")
)

// APIError is a response whose retCode reports failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cooling unit api returned %d: %s", e.Code, e.Message)
}

// Values are the readings extracted from one response.
type Values struct {
	Temperature int
	Humidity    int
	DeviceID    string
	DeviceName  string
	Alarm       *Alarm
}

// AlarmActive reports an alarm state other than normal.
func (v Values) AlarmActive() bool {
	if v.Alarm == nil {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(v.Alarm.State))
	return s != "" && s != "normal"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func identifies(kind, measurementID string, m Measurement) bool {
	return strings.Contains(strings.ToLower(m.Type), kind) ||
		strings.Contains(strings.ToLower(measurementID), kind)
}

func isCelsius(units string) bool {
	u := strings.ToLower(strings.TrimSpace(units))
	return u == "c" || u == "°c" || u == "degc" || strings.Contains(u, "celsius")
}

// Extract walks the response in sorted key order and returns the first
// temperature and humidity measurements found.
func Extract(resp *Response, src Source) (Values, error) {
	if resp.RetCode != 0 {
		return Values{}, &APIError{Code: resp.RetCode, Message: resp.RetMsg}
	}

	var (
		out          Values
		temp, hum    *Measurement
		tempDeviceID string
	)
	for _, deviceID := range sortedKeys(resp.Data) {
		if src.DeviceID != "" && deviceID != src.DeviceID {
			continue
		}
		device := resp.Data[deviceID]
		for _, entityID := range sortedKeys(device.Entities) {
			if src.EntityID != "" && entityID != src.EntityID {
				continue
			}
			measurements := device.Entities[entityID].Measurements
			for _, mid := range sortedKeys(measurements) {
				m := measurements[mid]
				switch {
				case temp == nil && identifies("temp", mid, m):
					temp = &m
					tempDeviceID = deviceID
					out.DeviceName = device.Name
					out.Alarm = device.Alarm
				case hum == nil && identifies("humid", mid, m):
					hum = &m
				}
			}
		}
	}

	if temp == nil {
		return Values{}, ErrNoTemperature
	}
	if hum == nil {
		return Values{}, ErrNoHumidity
	}

	t := float64(temp.Value)
	if src.Fahrenheit && isCelsius(temp.Units) {
		t = t*9/5 + 32
	}
	out.Temperature = int(math.Round(t))
	out.Humidity = int(math.Round(float64(hum.Value)))
	out.DeviceID = tempDeviceID
	return out, nil
}
