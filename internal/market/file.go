package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// instrumentFile is the on-disk layout of an instruments YAML file.
type instrumentFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// LoadFile reads instrument definitions from a YAML file of the form
//
//	instruments:
//	  - symbol: ES
//	    timezone: America/New_York
//	    sessions:
//	      RTH: ["09:30", "16:15"]
func LoadFile(path string) ([]Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instruments: %w", err)
	}
	var f instrumentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing instruments %s: %w", path, err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("parsing instruments %s: no instruments defined", path)
	}
	return f.Instruments, nil
}
