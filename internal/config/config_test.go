package config

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameRuleEnabledDefaultsTrueWhenAbsent(t *testing.T) {
	var r GameRule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","exe_name":"Game.exe","profile_id":"p"}`), &r))
	assert.True(t, r.EffectiveEnabled())
}

func TestGameRuleEnabledRespectsExplicitFalse(t *testing.T) {
	var r GameRule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","exe_name":"Game.exe","profile_id":"p","enabled":false}`), &r))
	assert.False(t, r.EffectiveEnabled())
}

func TestProfileRoutingModeDefaultsMinimalWhenAbsent(t *testing.T) {
	var p Profile
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","name":"x","assignments":[]}`), &p))
	assert.Equal(t, RoutingMinimal, p.EffectiveRoutingMode())
}

func TestSettingsAutoSwitchDefaultsFalseWhenAbsent(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"auto_start":false,"start_minimized":false,"auto_forward_on_launch":false}`), &s))
	assert.False(t, s.AutoSwitch)
}

func TestAppConfigUnknownFieldsDoNotFailDecoding(t *testing.T) {
	var cfg AppConfig
	err := json.Unmarshal([]byte(`{
		"settings": {"auto_start": true, "start_minimized": false, "auto_forward_on_launch": false},
		"profiles": [],
		"game_rules": [],
		"some_future_field": {"nested": true}
	}`), &cfg)
	require.NoError(t, err)
	assert.True(t, cfg.Settings.AutoStart)
}
