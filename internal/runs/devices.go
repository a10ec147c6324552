package runs

import (
	"context"
	"fmt"

	"github.com/RMahshie/wavescope/internal/instrument"
	"github.com/RMahshie/wavescope/internal/instrument/scpi"
	"github.com/RMahshie/wavescope/internal/instrument/sim"
)

// NewDeviceOpener returns an opener for the named driver: "sim" or "scpi".
func NewDeviceOpener(driver string, scpiCfg scpi.Config, simOpts sim.Options) (DeviceOpener, error) {
	switch driver {
	case "sim":
		return func(context.Context) (instrument.Device, error) {
			return sim.New(simOpts), nil
		}, nil
	case "scpi":
		return func(ctx context.Context) (instrument.Device, error) {
			d, err := scpi.Open(ctx, scpiCfg)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown instrument driver %q", driver)
	}
}
