package scpi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/wavescope/internal/instrument"
)

// Device is an instrument reached over SCPI.
type Device struct {
	c   *Client
	idn string
}

var _ instrument.Device = (*Device)(nil)

// Open connects and identifies the instrument.
func Open(ctx context.Context, cfg Config) (*Device, error) {
	rw, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &Device{c: NewClient(rw, cfg.Timeout)}
	idn, err := d.c.Query("*IDN?")
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("failed to identify instrument: %w", err)
	}
	d.idn = idn
	log.Info().Str("transport", cfg.Transport).Str("address", cfg.Address).Str("idn", idn).Msg("Instrument connected")
	return d, nil
}

// Identity returns the *IDN? response.
func (d *Device) Identity() string { return d.idn }

// Instrument returns the three subsystems.
func (d *Device) Instrument() instrument.Instrument {
	return instrument.Instrument{
		Wavegen: wavegen{d.c},
		Scope:   scope{d.c},
		IO:      staticIO{d.c},
	}
}

// Close closes the connection.
func (d *Device) Close() error {
	return d.c.Close()
}

// writeAll sends commands in order, stopping at the first failure.
func writeAll(c *Client, cmds ...string) error {
	for _, cmd := range cmds {
		if err := c.Write("%s", cmd); err != nil {
			return err
		}
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type wavegen struct{ c *Client }

func triggerSource(s instrument.TriggerSource) (string, error) {
	switch s {
	case instrument.TriggerNone:
		return "NONE", nil
	case instrument.TriggerManual:
		return "MAN", nil
	case instrument.TriggerExternal1:
		return "EXT1", nil
	default:
		return "", fmt.Errorf("unsupported trigger source %v", s)
	}
}

func (w wavegen) ConfigureTrigger(t instrument.GeneratorTrigger) error {
	src, err := triggerSource(t.Source)
	if err != nil {
		return err
	}
	return writeAll(w.c,
		"WGEN:TRIG:SOUR "+src,
		"WGEN:TRIG:WAIT "+num(t.Wait),
		"WGEN:TRIG:RUN "+num(t.Run),
		"WGEN:TRIG:REP "+strconv.Itoa(t.Repeat),
		"WGEN:TRIG:RTR "+onOff(t.RepeatOnTrigger),
	)
}

func (w wavegen) LoadCustom(cw instrument.CustomWaveform) error {
	src := fmt.Sprintf("SOUR%d", cw.Channel)
	if err := w.c.Write("%s:FUNC ARB", src); err != nil {
		return err
	}
	if err := w.c.WriteBlock(src+":DATA:ARB", cw.Samples); err != nil {
		return err
	}
	return writeAll(w.c,
		src+":ARB:SRAT "+num(cw.SampleRate),
		src+":FREQ "+num(cw.Frequency),
		src+":VOLT "+num(cw.Amplitude),
		src+":VOLT:OFFS "+num(cw.Offset),
		fmt.Sprintf("OUTP%d ON", cw.Channel),
	)
}

func function(t instrument.WaveformType) (string, error) {
	switch t {
	case instrument.Sine:
		return "SIN", nil
	case instrument.DC:
		return "DC", nil
	case instrument.Square:
		return "SQU", nil
	case instrument.Triangle:
		return "TRI", nil
	default:
		return "", fmt.Errorf("unsupported waveform %v", t)
	}
}

func (w wavegen) ConfigureSimple(sw instrument.SimpleWaveform) error {
	fn, err := function(sw.Type)
	if err != nil {
		return err
	}
	src := fmt.Sprintf("SOUR%d", sw.Channel)
	cmds := []string{src + ":FUNC " + fn}
	if sw.Type != instrument.DC {
		cmds = append(cmds,
			src+":FREQ "+num(sw.Frequency),
			src+":VOLT "+num(sw.Amplitude),
			src+":PHAS "+num(sw.Phase),
		)
	}
	cmds = append(cmds, src+":VOLT:OFFS "+num(sw.Offset), fmt.Sprintf("OUTP%d ON", sw.Channel))
	return writeAll(w.c, cmds...)
}

func (w wavegen) Start() error { return w.c.Write("WGEN:RUN") }
func (w wavegen) Stop() error  { return w.c.Write("WGEN:STOP") }

type staticIO struct{ c *Client }

func (s staticIO) ConfigureInput(line int) error {
	return s.c.Write("DIO:LINE%d:MODE INP", line)
}

func (s staticIO) ReadInput(line int) (bool, error) {
	resp, err := s.c.Query("DIO:LINE%d:INP?", line)
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(resp) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected DIO%d state %q", line, resp)
	}
}

func (s staticIO) Start() error { return s.c.Write("DIO:RUN") }
func (s staticIO) Stop() error  { return s.c.Write("DIO:STOP") }

type scope struct{ c *Client }

func (s scope) ConfigureCapture(cc instrument.CaptureConfig) error {
	mode := "SING"
	if cc.Mode == instrument.AcquireRepeated {
		mode = "REP"
	}
	cmds := []string{
		"SCOP:ACQ:POIN " + strconv.Itoa(cc.Samples),
		"SCOP:ACQ:SRAT " + num(cc.SampleRate),
		"SCOP:ACQ:MODE " + mode,
	}
	for _, ch := range cc.Channels {
		cmds = append(cmds, fmt.Sprintf("SCOP:CHAN%d:DISP ON", ch))
	}
	return writeAll(s.c, cmds...)
}

func (s scope) ConfigureTrigger(t instrument.ScopeTrigger) error {
	cond := "RIS"
	if t.Condition == instrument.Falling {
		cond = "FALL"
	}
	var mode string
	switch t.Mode {
	case instrument.TriggerAuto:
		mode = "AUTO"
	case instrument.TriggerNormal:
		mode = "NORM"
	default:
		mode = "NONE"
	}
	return writeAll(s.c,
		"SCOP:TRIG:SOUR "+strconv.Quote(t.Source),
		"SCOP:TRIG:COND "+cond,
		"SCOP:TRIG:MODE "+mode,
		"SCOP:ACQ:AVER "+strconv.Itoa(t.Average),
	)
}

func (s scope) ConfigureView(v instrument.View) error {
	return writeAll(s.c,
		"SCOP:TIM:POS "+num(v.Position),
		"SCOP:TIM:SCAL "+num(v.Timebase),
	)
}

func (s scope) Start() error { return s.c.Write("SCOP:RUN") }
func (s scope) Stop() error  { return s.c.Write("SCOP:STOP") }

func (s scope) ReadChannel(channel int) ([]float64, error) {
	return s.c.QueryBlock("SCOP:CHAN%d:DATA?", channel)
}

func (s scope) CaptureTime() (time.Time, error) {
	resp, err := s.c.Query("SCOP:TIM:TAKEN?")
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, strings.Trim(strings.TrimSpace(resp), `"`))
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected capture time %q: %w", resp, err)
	}
	return t, nil
}
