package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/session/sim"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	settings := session.DefaultSettings()
	settings.DepthResolution = session.ResolutionQVGA
	settings.VisibleEnabled = false
	cam := camera.New(sim.New(sim.WithFrameRate(100)), camera.WithSettings(settings))
	t.Cleanup(func() { _ = cam.Close() })
	return newModel(cam, 10*time.Millisecond)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func TestInitSchedulesTick(t *testing.T) {
	m := newTestModel(t)
	assert.NotNil(t, m.Init())
}

func TestStartStopToggle(t *testing.T) {
	m := newTestModel(t)
	assert.Contains(t, m.View(), "no frame")

	m, _ = update(t, m, key("s"))
	assert.Equal(t, camera.StateStreaming, m.state)

	require.Eventually(t, func() bool {
		return m.cam.DepthFrame().IsValid()
	}, 2*time.Second, 5*time.Millisecond)

	m, cmd := update(t, m, tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Equal(t, 320, m.width)
	assert.Contains(t, m.View(), "320x240")
	assert.Contains(t, m.View(), "streaming")

	m, _ = update(t, m, key("s"))
	assert.Equal(t, camera.StateStopped, m.state)
}

func TestExposureKeys(t *testing.T) {
	m := newTestModel(t)
	before := m.cam.VisibleExposure()

	m, _ = update(t, m, key("+"))
	assert.InDelta(t, before+exposureStep, m.exposure, 1e-6)

	m, _ = update(t, m, key("-"))
	assert.InDelta(t, before, m.exposure, 1e-6)

	m, _ = update(t, m, key("g"))
	assert.Equal(t, float32(3), m.gain)
}

func TestQuit(t *testing.T) {
	m := newTestModel(t)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestViewShowsSessionError(t *testing.T) {
	s := sim.New()
	cam := camera.New(s)
	defer cam.Close()
	m := newModel(cam, time.Second)

	s.Emit(session.EventDisconnected)
	m, _ = update(t, m, tickMsg(time.Now()))
	assert.Contains(t, m.View(), "Disconnected")
}
