package coolingunit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Response is the body returned by the cooling unit telemetry API.
type Response struct {
	RetCode int               `json:"retCode"`
	RetMsg  string            `json:"retMsg"`
	Data    map[string]Device `json:"data"`
}

type Device struct {
	Type     string            `json:"type"`
	State    string            `json:"state"`
	Name     string            `json:"name"`
	Alarm    *Alarm            `json:"alarm"`
	Entities map[string]Entity `json:"entity"`
}

type Alarm struct {
	State    string `json:"state"`
	Severity string `json:"severity"`
}

type Entity struct {
	Measurements map[string]Measurement `json:"measurement"`
}

type Measurement struct {
	Type  string    `json:"type"`
	Value FlexFloat `json:"value"`
	Units string    `json:"units"`
}

// FlexFloat decodes a JSON number or a string holding a number.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("measurement value %q is not numeric", s)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("measurement value %s is not numeric", b)
	}
	*f = FlexFloat(v)
	return nil
}
