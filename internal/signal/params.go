package signal

// RunParameters holds every tolerance-subject quantity for one simulation
// run. It is a value object: campaign draws build a fresh instance per run
// and nothing mutates one in place, so runs can execute on parallel workers
// without synchronization.
type RunParameters struct {
	// FundamentalAmp is the amplitude A1 of the base-frequency component.
	FundamentalAmp float64

	// HarmonicAmp is the amplitude of the Pth-harmonic component.
	HarmonicAmp float64

	// NoiseLevel is the electrical noise magnitude as a fraction of signal.
	NoiseLevel float64

	// Temperature is the ambient temperature in degrees Celsius.
	Temperature float64

	// SupplyVoltage is the sensor supply voltage in volts.
	SupplyVoltage float64

	// AirGap is the sensor-to-magnet distance in millimetres.
	AirGap float64

	// OpAmpBandwidth is the front-end op-amp bandwidth in Hz.
	OpAmpBandwidth float64

	// ADCResolution is the converter resolution in bits.
	ADCResolution int

	// ADCSamplingRate is the converter sampling rate in Hz.
	ADCSamplingRate float64

	// ProcessingDelay is the digital processing latency in seconds.
	ProcessingDelay float64
}

// Nominal supply and air gap the scaling models normalize against.
const (
	NominalSupplyVoltage = 5.0
	NominalAirGap        = 0.8
	NominalTemperature   = 25.0
)

// TempCoefficient is the TMR element temperature coefficient, per °C.
const TempCoefficient = 0.001

// DefaultParameters returns the nominal run parameters of the reference
// sensor design.
func DefaultParameters() RunParameters {
	return RunParameters{
		FundamentalAmp:  0.2,
		HarmonicAmp:     1.0,
		NoiseLevel:      0.01,
		Temperature:     NominalTemperature,
		SupplyVoltage:   NominalSupplyVoltage,
		AirGap:          NominalAirGap,
		OpAmpBandwidth:  100e3,
		ADCResolution:   16,
		ADCSamplingRate: 10e3,
		ProcessingDelay: 100e-6,
	}
}
