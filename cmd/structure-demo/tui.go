package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/delegate"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

const exposureStep = 0.001

type tickMsg time.Time

// model is the dashboard. It polls the camera on every tick.
type model struct {
	cam      *camera.StructureCamera
	interval time.Duration

	state    camera.State
	width    int
	height   int
	center   float32
	frameNum uint64

	exposure float32
	gain     float32
	accel    types.AccelerometerEvent
	gyro     types.GyroscopeEvent
	stats    delegate.Stats
	lastErr  *delegate.SessionError
	startErr error
}

func newModel(cam *camera.StructureCamera, interval time.Duration) model {
	return model{cam: cam, interval: interval}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cam.Stop()
			return m, tea.Quit
		case "s":
			if m.cam.State() != camera.StateStopped {
				m.cam.Stop()
			} else {
				m.startErr = m.cam.Start()
			}
		case "+", "=":
			m.cam.SetVisibleExposure(m.cam.VisibleExposure() + exposureStep)
		case "-":
			m.cam.SetVisibleExposure(m.cam.VisibleExposure() - exposureStep)
		case "g":
			m.cam.SetVisibleGain(m.cam.VisibleGain() + 1)
		case "G":
			m.cam.SetVisibleGain(m.cam.VisibleGain() - 1)
		}
		return m.refresh(), nil
	case tickMsg:
		return m.refresh(), m.tick()
	}
	return m, nil
}

func (m model) refresh() model {
	m.state = m.cam.State()
	f := m.cam.DepthFrame()
	if f.IsValid() {
		m.width, m.height = f.Width, f.Height
		m.center = f.Center()
		m.frameNum = f.FrameNum
	}
	m.exposure = m.cam.VisibleExposure()
	m.gain = m.cam.VisibleGain()
	m.accel = m.cam.LastAccelerometerEvent()
	m.gyro = m.cam.LastGyroscopeEvent()
	m.stats = m.cam.Stats()
	m.lastErr = m.cam.LastError()
	return m
}

// View implements tea.Model
func (m model) View() string {
	var b strings.Builder

	b.WriteString("Structure camera\n")
	b.WriteString("================\n\n")

	fmt.Fprintf(&b, "State:    %s\n", m.state)
	if m.startErr != nil {
		fmt.Fprintf(&b, "Start:    %v\n", m.startErr)
	}
	if m.width > 0 {
		center := "invalid"
		if !math.IsNaN(float64(m.center)) {
			center = fmt.Sprintf("%.0f mm", m.center)
		}
		fmt.Fprintf(&b, "Depth:    %dx%d #%d centre %s\n", m.width, m.height, m.frameNum, center)
	} else {
		b.WriteString("Depth:    no frame\n")
	}
	fmt.Fprintf(&b, "Visible:  exposure %.4fs gain %.1f\n", m.exposure, m.gain)
	if m.accel.IsValid() {
		a := m.accel.Acceleration
		fmt.Fprintf(&b, "Accel:    %+.3f %+.3f %+.3f g\n", a.X, a.Y, a.Z)
	}
	if m.gyro.IsValid() {
		g := m.gyro.RotationRate
		fmt.Fprintf(&b, "Gyro:     %+.3f %+.3f %+.3f rad/s\n", g.X, g.Y, g.Z)
	}
	fmt.Fprintf(&b, "Samples:  depth %d visible %d infrared %d imu %d/%d\n",
		m.stats.DepthFrames, m.stats.VisibleFrames, m.stats.InfraredFrames,
		m.stats.AccelerometerEvents, m.stats.GyroscopeEvents)
	if m.lastErr != nil {
		fmt.Fprintf(&b, "Error:    %v\n", m.lastErr)
	}

	b.WriteString("\n(s start/stop, +/- exposure, g/G gain, q quit)")
	return b.String()
}
