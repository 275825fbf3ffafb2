package session

import (
	"fmt"
	"strings"
)

// SourceID selects the capture source
type SourceID int

const (
	SourceStructureCore SourceID = iota
)

func (s SourceID) String() string {
	if s == SourceStructureCore {
		return "StructureCore"
	}
	return fmt.Sprintf("SourceID(%d)", int(s))
}

// DepthResolution values match the exported SC_RESOLUTION_* constants
type DepthResolution int

const (
	ResolutionQVGA DepthResolution = 0
	ResolutionVGA  DepthResolution = 1
	ResolutionSXGA DepthResolution = 2
)

// Dimensions returns the depth image width and height for the resolution
func (r DepthResolution) Dimensions() (width, height int) {
	switch r {
	case ResolutionQVGA:
		return 320, 240
	case ResolutionVGA:
		return 640, 480
	case ResolutionSXGA:
		return 1280, 960
	default:
		return 0, 0
	}
}

func (r DepthResolution) String() string {
	switch r {
	case ResolutionQVGA:
		return "QVGA"
	case ResolutionVGA:
		return "VGA"
	case ResolutionSXGA:
		return "SXGA"
	default:
		return fmt.Sprintf("DepthResolution(%d)", int(r))
	}
}

// DepthRangeMode values match the exported SC_DEPTH_RANGE_* constants
type DepthRangeMode int

const (
	DepthRangeVeryShort DepthRangeMode = iota
	DepthRangeShort
	DepthRangeMedium
	DepthRangeLong
	DepthRangeVeryLong
	DepthRangeHybrid
	DepthRangeDefault
)

var depthRangeNames = []string{"VeryShort", "Short", "Medium", "Long", "VeryLong", "Hybrid", "Default"}

func (m DepthRangeMode) String() string {
	if m >= 0 && int(m) < len(depthRangeNames) {
		return depthRangeNames[m]
	}
	return fmt.Sprintf("DepthRangeMode(%d)", int(m))
}

// EstimatedRange returns the vendor's estimated working range in meters.
// DepthRangeDefault has no preset and reports the full sensor range.
func (m DepthRangeMode) EstimatedRange() (near, far float64) {
	switch m {
	case DepthRangeVeryShort:
		return 0.35, 0.92
	case DepthRangeShort:
		return 0.41, 1.36
	case DepthRangeMedium:
		return 0.52, 5.23
	case DepthRangeLong:
		return 0.58, 8.0
	case DepthRangeVeryLong:
		return 0.58, 10.0
	default:
		return 0.35, 10.0
	}
}

// DynamicCalibrationMode values match the exported SC_CALIBRATION_* constants
type DynamicCalibrationMode int

const (
	// CalibrationOff performs no dynamic calibration
	CalibrationOff DynamicCalibrationMode = iota
	// CalibrationOneShot runs one cycle when depth streaming starts and
	// persists the result on the sensor
	CalibrationOneShot
	// CalibrationContinuous recalibrates while streaming without persisting
	CalibrationContinuous
)

func (m DynamicCalibrationMode) String() string {
	switch m {
	case CalibrationOff:
		return "Off"
	case CalibrationOneShot:
		return "OneShot"
	case CalibrationContinuous:
		return "Continuous"
	default:
		return fmt.Sprintf("DynamicCalibrationMode(%d)", int(m))
	}
}

// InfraredMode values match the exported SC_INFRARED_MODE_* constants
type InfraredMode int

const (
	InfraredLeftCameraOnly InfraredMode = iota
	InfraredRightCameraOnly
	InfraredBothCameras
)

func (m InfraredMode) String() string {
	switch m {
	case InfraredLeftCameraOnly:
		return "Left"
	case InfraredRightCameraOnly:
		return "Right"
	case InfraredBothCameras:
		return "RightLeft"
	default:
		return fmt.Sprintf("InfraredMode(%d)", int(m))
	}
}

// DemosaicMethod selects how the visible camera's raw mosaic is reconstructed
type DemosaicMethod int

const (
	DemosaicBilinear DemosaicMethod = iota
	DemosaicEdgeAware
)

func (m DemosaicMethod) String() string {
	switch m {
	case DemosaicBilinear:
		return "Bilinear"
	case DemosaicEdgeAware:
		return "EdgeAware"
	default:
		return fmt.Sprintf("DemosaicMethod(%d)", int(m))
	}
}

// IMUUpdateRate is the combined accelerometer/gyroscope sample rate
type IMUUpdateRate int

const (
	IMUAccelAndGyro100Hz IMUUpdateRate = iota
	IMUAccelAndGyro200Hz
	IMUAccelAndGyro800Hz
	IMUAccelAndGyro1000Hz
)

// Hz returns the rate in samples per second
func (r IMUUpdateRate) Hz() int {
	switch r {
	case IMUAccelAndGyro100Hz:
		return 100
	case IMUAccelAndGyro800Hz:
		return 800
	case IMUAccelAndGyro1000Hz:
		return 1000
	default:
		return 200
	}
}

func (r IMUUpdateRate) String() string {
	return fmt.Sprintf("AccelAndGyro_%dHz", r.Hz())
}

// Settings is applied by StartMonitoring. Fields are forwarded as-is; nothing
// is validated before the session sees them.
type Settings struct {
	Source SourceID `json:"source" yaml:"source"`

	DepthEnabled         bool `json:"depth_enabled" yaml:"depth_enabled"`
	VisibleEnabled       bool `json:"visible_enabled" yaml:"visible_enabled"`
	InfraredEnabled      bool `json:"infrared_enabled" yaml:"infrared_enabled"`
	AccelerometerEnabled bool `json:"accelerometer_enabled" yaml:"accelerometer_enabled"`
	GyroscopeEnabled     bool `json:"gyroscope_enabled" yaml:"gyroscope_enabled"`

	InfraredMode           InfraredMode           `json:"infrared_mode" yaml:"infrared_mode"`
	DemosaicMethod         DemosaicMethod         `json:"demosaic_method" yaml:"demosaic_method"`
	DepthResolution        DepthResolution        `json:"depth_resolution" yaml:"depth_resolution"`
	IMUUpdateRate          IMUUpdateRate          `json:"imu_update_rate" yaml:"imu_update_rate"`
	DepthRangeMode         DepthRangeMode         `json:"depth_range_mode" yaml:"depth_range_mode"`
	DynamicCalibrationMode DynamicCalibrationMode `json:"dynamic_calibration_mode" yaml:"dynamic_calibration_mode"`

	InfraredAutoExposureEnabled bool `json:"infrared_auto_exposure" yaml:"infrared_auto_exposure"`
	VisibleApplyGammaCorrection bool `json:"gamma_correction" yaml:"gamma_correction"`
	ApplyExpensiveCorrection    bool `json:"depth_correction" yaml:"depth_correction"`
	LowLatencyIMU               bool `json:"low_latency_imu" yaml:"low_latency_imu"`
}

// DefaultSettings returns depth and visible streaming at SXGA with
// edge-aware demosaicing; infrared and IMU are off.
func DefaultSettings() Settings {
	return Settings{
		Source:                      SourceStructureCore,
		DepthEnabled:                true,
		VisibleEnabled:              true,
		InfraredEnabled:             false,
		AccelerometerEnabled:        false,
		GyroscopeEnabled:            false,
		InfraredMode:                InfraredLeftCameraOnly,
		DemosaicMethod:              DemosaicEdgeAware,
		DepthResolution:             ResolutionSXGA,
		IMUUpdateRate:               IMUAccelAndGyro200Hz,
		DepthRangeMode:              DepthRangeDefault,
		DynamicCalibrationMode:      CalibrationOff,
		InfraredAutoExposureEnabled: false,
		VisibleApplyGammaCorrection: true,
		ApplyExpensiveCorrection:    false,
		LowLatencyIMU:               true,
	}
}

// InfraredDimensions returns the infrared frame size for the configured mode.
// Both-camera mode places the two images side by side.
func (s Settings) InfraredDimensions() (width, height int) {
	width, height = 1280, 960
	if s.InfraredMode == InfraredBothCameras {
		width *= 2
	}
	return width, height
}

// VisibleDimensions returns the visible camera frame size
func (s Settings) VisibleDimensions() (width, height int) {
	return 640, 480
}

// ParseDepthResolution accepts "qvga", "vga" or "sxga" in any case
func ParseDepthResolution(s string) (DepthResolution, error) {
	for _, r := range []DepthResolution{ResolutionQVGA, ResolutionVGA, ResolutionSXGA} {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown depth resolution %q", s)
}

// ParseDepthRangeMode accepts a mode name such as "Medium" or "veryshort"
func ParseDepthRangeMode(s string) (DepthRangeMode, error) {
	for i, name := range depthRangeNames {
		if strings.EqualFold(s, name) {
			return DepthRangeMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown depth range mode %q", s)
}
