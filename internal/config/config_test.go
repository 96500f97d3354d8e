package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.BucketStep != 50 {
		t.Errorf("BucketStep = %d, want 50", cfg.BucketStep)
	}
	if cfg.SearchMaxRange != 500 {
		t.Errorf("SearchMaxRange = %d, want 500", cfg.SearchMaxRange)
	}
	if cfg.DefaultRating != 1200 {
		t.Errorf("DefaultRating = %d, want 1200", cfg.DefaultRating)
	}
	if cfg.MatcherShards != 4 {
		t.Errorf("MatcherShards = %d, want 4", cfg.MatcherShards)
	}
	if cfg.DBMaxConns != 25 {
		t.Errorf("DBMaxConns = %d, want 25", cfg.DBMaxConns)
	}
	want := []string{"bullet", "blitz", "rapid"}
	if !reflect.DeepEqual(cfg.TimeControls, want) {
		t.Errorf("TimeControls = %v, want %v", cfg.TimeControls, want)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BUCKET_STEP", "100")
	t.Setenv("TIME_CONTROLS", "blitz, rapid ,classical")
	t.Setenv("APP_PORT", "9000")

	cfg := Load()
	if cfg.BucketStep != 100 {
		t.Errorf("BucketStep = %d, want 100", cfg.BucketStep)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	want := []string{"blitz", "rapid", "classical"}
	if !reflect.DeepEqual(cfg.TimeControls, want) {
		t.Errorf("TimeControls = %v, want %v", cfg.TimeControls, want)
	}
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("BUCKET_STEP", "fifty")
	if got := Load().BucketStep; got != 50 {
		t.Errorf("BucketStep = %d, want default 50", got)
	}
}

func TestAllowsTimeControl(t *testing.T) {
	cfg := &Config{TimeControls: []string{"bullet", "blitz"}}
	if !cfg.AllowsTimeControl("blitz") {
		t.Error("blitz should be allowed")
	}
	if cfg.AllowsTimeControl("rapid") {
		t.Error("rapid should not be allowed")
	}
	if cfg.AllowsTimeControl("") {
		t.Error("empty tag should not be allowed")
	}
}
