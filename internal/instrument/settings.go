package instrument

// TriggerSource selects what starts a generator run.
type TriggerSource int

const (
	// TriggerNone runs as soon as Start is called.
	TriggerNone TriggerSource = iota
	// TriggerManual waits for a software trigger.
	TriggerManual
	// TriggerExternal1 waits for an edge on the external trigger pin T1.
	TriggerExternal1
)

func (s TriggerSource) String() string {
	switch s {
	case TriggerNone:
		return "None"
	case TriggerManual:
		return "Manual"
	case TriggerExternal1:
		return "Trigger 1"
	default:
		return "unknown"
	}
}

// RepeatInfinite makes the generator re-run on every trigger.
const RepeatInfinite = 0

// GeneratorTrigger is the generator's run/repeat state configuration.
type GeneratorTrigger struct {
	Source          TriggerSource
	Wait            float64 // seconds between trigger and output
	Run             float64 // seconds of output per trigger
	Repeat          int     // RepeatInfinite or a positive count
	RepeatOnTrigger bool
}

// OneShot reports whether a Start produces exactly one run.
func (t GeneratorTrigger) OneShot() bool {
	return t.Repeat == 1
}

// WaveformType is a built-in generator shape.
type WaveformType int

const (
	Sine WaveformType = iota
	DC
	Square
	Triangle
)

func (w WaveformType) String() string {
	switch w {
	case Sine:
		return "Sine"
	case DC:
		return "DC"
	case Square:
		return "Square"
	case Triangle:
		return "Triangle"
	default:
		return "unknown"
	}
}

// CustomWaveform is an arbitrary sample buffer played at SampleRate.
type CustomWaveform struct {
	Channel    int
	Samples    []float64 // normalized to [-1, 1]
	SampleRate float64
	Amplitude  float64 // volts
	Offset     float64 // volts
	Frequency  float64 // buffer repetition frequency, Hz
}

// SimpleWaveform is a built-in shape.
type SimpleWaveform struct {
	Channel   int
	Type      WaveformType
	Frequency float64
	Amplitude float64
	Offset    float64
	Phase     float64 // degrees
}

// AcquisitionMode is the scope acquisition mode.
type AcquisitionMode int

const (
	AcquireSingle AcquisitionMode = iota
	AcquireRepeated
)

func (m AcquisitionMode) String() string {
	if m == AcquireRepeated {
		return "Repeated"
	}
	return "Single"
}

// CaptureConfig sets the scope record.
type CaptureConfig struct {
	Samples    int
	SampleRate float64
	Channels   []int
	Mode       AcquisitionMode
}

// TriggerMode is the scope trigger mode.
type TriggerMode int

const (
	TriggerAuto TriggerMode = iota
	TriggerNormal
	TriggerOff
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerAuto:
		return "Auto"
	case TriggerNormal:
		return "Normal"
	default:
		return "None"
	}
}

// TriggerCondition is the edge the scope triggers on.
type TriggerCondition int

const (
	Rising TriggerCondition = iota
	Falling
)

func (c TriggerCondition) String() string {
	if c == Falling {
		return "Falling"
	}
	return "Rising"
}

// ScopeTrigger configures how captures start and how many are averaged.
type ScopeTrigger struct {
	Source    string // e.g. "Wavegen C1"
	Condition TriggerCondition
	Mode      TriggerMode
	Average   int
}

// View positions the capture window.
type View struct {
	Position float64 // seconds, center of the view
	Timebase float64 // seconds per division
}
