// Package config parses the CCI_CONFIG INI-style device registry described
// in spec.md §6: one section per device, a mandatory `transport =` key, and
// passthrough of any unrecognized key as an opaque string parameter.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DeviceSpec is one [section] of the CCI_CONFIG file.
type DeviceSpec struct {
	Name      string
	Transport string
	Priority  int
	Default   bool
	Params    map[string]string
}

// ErrNotFound is returned when CCI_CONFIG is unset or the file is missing.
var ErrNotFound = fmt.Errorf("config: CCI_CONFIG not set or file missing")

// Load reads the device registry from the path in the CCI_CONFIG
// environment variable.
func Load() ([]DeviceSpec, error) {
	path := os.Getenv("CCI_CONFIG")
	if path == "" {
		return nil, ErrNotFound
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an INI-style device registry from r. Sections name devices;
// `transport=` is mandatory per section; `priority=` defaults to 50 and is
// clamped to [0, 100]; `default=1` marks at most one device as default.
// Unknown keys are passed through verbatim in DeviceSpec.Params.
func Parse(r io.Reader) ([]DeviceSpec, error) {
	scanner := bufio.NewScanner(r)
	var specs []DeviceSpec
	var cur *DeviceSpec
	haveDefault := false
	lineNo := 0

	flush := func() error {
		if cur == nil {
			return nil
		}
		if cur.Transport == "" {
			return fmt.Errorf("config: device %q missing mandatory transport key", cur.Name)
		}
		specs = append(specs, *cur)
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := flush(); err != nil {
				return nil, err
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			cur = &DeviceSpec{Name: name, Priority: 50, Params: map[string]string{}}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("config: line %d: key outside any [device] section", lineNo)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: line %d: expected key = value", lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "transport":
			cur.Transport = value
		case "priority":
			p, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("config: line %d: priority must be an integer: %w", lineNo, err)
			}
			if p < 0 {
				p = 0
			}
			if p > 100 {
				p = 100
			}
			cur.Priority = p
		case "default":
			if value == "1" || strings.EqualFold(value, "true") {
				if haveDefault {
					return nil, fmt.Errorf("config: line %d: more than one default device", lineNo)
				}
				cur.Default = true
				haveDefault = true
			}
		default:
			cur.Params[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return specs, nil
}
