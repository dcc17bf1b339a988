package cci

import (
	"errors"

	"github.com/rocketbitz/cci-go/internal/config"
)

func loadDeviceRegistry() ([]Device, error) {
	specs, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, NewError("init", StatusErrNotFound, err)
		}
		return nil, NewError("init", StatusError, err)
	}
	out := make([]Device, 0, len(specs))
	for _, s := range specs {
		out = append(out, Device{
			Name:      s.Name,
			Transport: s.Transport,
			Priority:  s.Priority,
			Default:   s.Default,
			Params:    s.Params,
			Up:        true,
		})
	}
	return out, nil
}
