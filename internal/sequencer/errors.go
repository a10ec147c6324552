package sequencer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid run parameters. Nothing has touched the
	// instrument when it is returned.
	ErrConfiguration = errors.New("configuration error")
	// ErrInstrument marks a failed instrument call. The run is aborted.
	ErrInstrument = errors.New("instrument communication error")
	// ErrExport marks a failed capture export. The run continues.
	ErrExport = errors.New("export error")
)

// ConfigError reports an invalid parameter.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// InstrumentError reports a failed instrument call. Round is -1 outside the
// acquisition loop.
type InstrumentError struct {
	Round int
	Op    string
	Err   error
}

func (e *InstrumentError) Error() string {
	if e.Round < 0 {
		return fmt.Sprintf("instrument: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("instrument: round %d: %s: %v", e.Round, e.Op, e.Err)
}

func (e *InstrumentError) Unwrap() error { return e.Err }

func (e *InstrumentError) Is(target error) bool { return target == ErrInstrument }

// ExportError reports that one round's capture could not be written.
type ExportError struct {
	Round int
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export: round %d: %v", e.Round, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

func (e *ExportError) Is(target error) bool { return target == ErrExport }
