package obd

// Scale converts a raw reply value into the fixed-point integer stored in an
// ObdSample. Every function here reproduces the integer truncation that
// existing data files were written with.
type Scale func(raw uint32) int32

// Identity keeps the raw value.
func Identity(x uint32) int32 { return int32(x) }

// RPMTenths converts the two-byte RPM value (rpm*4) into tenths of rpm.
func RPMTenths(x uint32) int32 { return int32(x + x + x/2) }

// Percent maps 0..255 to tenths of a percent, 0..1000.
func Percent(x uint32) int32 { return int32(float64(x) / 2.55 * 10.0) }

// Temperature maps raw-40 degrees Celsius into tenths.
func Temperature(x uint32) int32 { return (int32(x) - 40) * 10 }

// EGRErr maps raw-128 into tenths.
func EGRErr(x uint32) int32 { return (int32(x) - 128) * 10 }

// Tenths multiplies by ten.
func Tenths(x uint32) int32 { return int32(x) * 10 }

// HalfDegrees maps timing advance to -16384..16256.
func HalfDegrees(x uint32) int32 { return int32(x)*128 - 64*256 }

// KPa10 maps fuel rail pressure relative to manifold to tenths of kPa.
func KPa10(x uint32) int32 { return int32(float64(x) * 0.079 * 10.0) }

// Catalyst maps catalyst temperature (tenths of a degree, offset 40 degrees)
// to tenths of a degree Celsius.
func Catalyst(x uint32) int32 { return int32(x) - 40*10 }

// param is one pollable parameter with its reply width and scaling.
type param struct {
	pid   PID
	bytes int
	scale Scale
}

var (
	basicParams = []param{
		{RPM, 2, RPMTenths},
		{Throttle, 1, Percent},
		{EngineLoad, 1, Percent},
		{Speed, 1, Tenths},
	}
	tempParams = []param{
		{AirTemp, 1, Temperature},
		{Coolant, 1, Temperature},
		{EGR, 1, Percent},
		{EGRError, 1, EGRErr},
		{Baro, 1, Tenths},
	}
	fuelParams = []param{
		{FuelLevel, 1, Percent},
		{FuelStatus, 2, Identity},
		{STrim1, 1, Percent},
		{LTrim1, 1, Percent},
		{STrim2, 1, Percent},
		{LTrim2, 1, Percent},
	}
	extraParams = []param{
		{Timing, 1, HalfDegrees},
		{Intake, 1, Temperature},
		{MAF, 2, Identity},
		{FuelRailD, 2, Tenths},
		{FuelRailM, 2, KPa10},
		{Evap, 1, Percent},
	}
	catalystParams = []param{
		{Cat1S1, 2, Catalyst},
		{Cat2S1, 2, Catalyst},
		{Cat1S2, 2, Catalyst},
		{Cat2S2, 2, Catalyst},
	}
	infoParams = []param{
		{Runtime, 2, Tenths},
		{MilDist, 2, Tenths},
		{Warmups, 1, Tenths},
	}
	milStatusParam = param{MilStatus, 4, Identity}
)

// runningGroups are polled, in order, only while the engine turns. The basic
// group is re-read before each of them.
var runningGroups = [][]param{tempParams, fuelParams, extraParams, catalystParams, infoParams}

// Physical converts a stored sample value back into engineering units:
// rpm, km/h, percent, degrees Celsius, kPa, seconds or km. Raw bitfields and
// synthetic kinds are returned unchanged.
func Physical(p PID, v int32) float64 {
	switch p {
	case FuelStatus, MAF, MilStatus, Trouble, Capability:
		return float64(v)
	case Timing:
		return float64(v) / 256
	default:
		return float64(v) / 10
	}
}
