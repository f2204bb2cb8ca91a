package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padswitch/internal/config"
)

// fakeActivator is a minimal Activator stub recording every
// ActivateProfile/ClearActiveProfile call so tests can assert on the
// transition table without a real AppState or config file.
type fakeActivator struct {
	mu     sync.Mutex
	cfg    *config.AppConfig
	calls  []string
}

func newFakeActivator(cfg *config.AppConfig) *fakeActivator {
	return &fakeActivator{cfg: cfg}
}

func (f *fakeActivator) Config() *config.AppConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeActivator) ActivateProfile(profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "activate:"+profileID)
	id := profileID
	f.cfg.Settings.ActiveProfileID = &id
	return nil
}

func (f *fakeActivator) ClearActiveProfile() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "clear")
	f.cfg.Settings.ActiveProfileID = nil
	return nil
}

func (f *fakeActivator) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestApplyTransitionNoneToRuleActivatesAndRecordsPreGame(t *testing.T) {
	q := "Q"
	cfg := &config.AppConfig{Settings: config.Settings{ActiveProfileID: &q}}
	act := newFakeActivator(cfg)
	w := New(act)

	rule := &config.GameRule{ID: "r1", ExeName: "game.exe", ProfileID: "P"}
	w.applyTransition(rule, cfg.Settings.ActiveProfileID)

	assert.Equal(t, []string{"activate:P"}, act.snapshot())

	w.mu.Lock()
	ruleID := w.activeRuleID
	preGame := w.preGameProfile
	w.mu.Unlock()
	assert.Equal(t, "r1", ruleID)
	require.NotNil(t, preGame)
	assert.Equal(t, "Q", *preGame)
}

func TestApplyTransitionRuleToNoneRestoresPreGame(t *testing.T) {
	cfg := &config.AppConfig{}
	act := newFakeActivator(cfg)
	w := New(act)
	w.activeRuleID = "r1"
	q := "Q"
	w.preGameProfile = &q

	w.applyTransition(nil, nil)

	assert.Equal(t, []string{"activate:Q"}, act.snapshot())
	assert.Equal(t, "", w.activeRuleID)
	assert.Nil(t, w.preGameProfile)
}

func TestApplyTransitionRuleToNoneWithNoPreGameClears(t *testing.T) {
	cfg := &config.AppConfig{}
	act := newFakeActivator(cfg)
	w := New(act)
	w.activeRuleID = "r1"

	w.applyTransition(nil, nil)

	assert.Equal(t, []string{"clear"}, act.snapshot())
	assert.Equal(t, "", w.activeRuleID)
}

func TestApplyTransitionSameRuleIsNoOp(t *testing.T) {
	cfg := &config.AppConfig{}
	act := newFakeActivator(cfg)
	w := New(act)
	w.activeRuleID = "r1"

	rule := &config.GameRule{ID: "r1", ExeName: "game.exe", ProfileID: "P"}
	w.applyTransition(rule, nil)

	assert.Empty(t, act.snapshot())
	assert.Equal(t, "r1", w.activeRuleID)
}

func TestApplyTransitionDifferentRuleSwitchesDirectly(t *testing.T) {
	cfg := &config.AppConfig{}
	act := newFakeActivator(cfg)
	w := New(act)
	w.activeRuleID = "r1"

	rule2 := &config.GameRule{ID: "r2", ExeName: "other.exe", ProfileID: "P2"}
	w.applyTransition(rule2, nil)

	assert.Equal(t, []string{"activate:P2"}, act.snapshot())
	assert.Equal(t, "r2", w.activeRuleID)
}

func TestFindMatchingRuleIsCaseInsensitiveAndSkipsDisabled(t *testing.T) {
	disabled := false
	rules := []config.GameRule{
		{ID: "1", ExeName: "Other.exe", ProfileID: "p1", Enabled: &disabled},
		{ID: "2", ExeName: "Game.EXE", ProfileID: "p2"},
	}
	running := map[string]bool{"game.exe": true}

	got := findMatchingRule(rules, running)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.ID)
}

func TestStartStopIsIdempotentAndJoins(t *testing.T) {
	cfg := &config.AppConfig{}
	act := newFakeActivator(cfg)
	w := New(act)

	w.Start()
	w.Start() // no-op
	assert.True(t, w.IsRunning())

	time.Sleep(10 * time.Millisecond)
	w.Stop()
	w.Stop() // no-op
	assert.False(t, w.IsRunning())
}
