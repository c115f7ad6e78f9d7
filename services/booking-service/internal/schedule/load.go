package schedule

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/barberslot/libs/config"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Resources []resourceConfig `yaml:"resources"`
}

type resourceConfig struct {
	ID                     string `yaml:"id"`
	Timezone               string `yaml:"timezone"`
	Open                   string `yaml:"open"`
	Close                  string `yaml:"close"`
	LunchStart             string `yaml:"lunch_start"`
	LunchEnd               string `yaml:"lunch_end"`
	SlotGranularityMinutes int    `yaml:"slot_granularity_minutes"`
}

// defaults mirror the shop's posted hours.
func defaultResource() resourceConfig {
	return resourceConfig{
		ID:                     "barber-1",
		Timezone:               "UTC",
		Open:                   "09:00",
		Close:                  "18:00",
		LunchStart:             "12:00",
		LunchEnd:               "13:00",
		SlotGranularityMinutes: 15,
	}
}

// LoadFromEnv reads SCHEDULE_FILE when set, otherwise builds a single resource from
// RESOURCE_ID, TIMEZONE, BUSINESS_OPEN, BUSINESS_CLOSE, LUNCH_START, LUNCH_END and
// SLOT_GRANULARITY_MINUTES.
func LoadFromEnv() (*Registry, error) {
	if path := config.String("SCHEDULE_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schedule file: %w", err)
		}
		return Parse(raw)
	}

	def := defaultResource()
	gran, err := config.Int("SLOT_GRANULARITY_MINUTES", def.SlotGranularityMinutes)
	if err != nil {
		return nil, err
	}
	rc := resourceConfig{
		ID:                     config.String("RESOURCE_ID", def.ID),
		Timezone:               config.String("TIMEZONE", def.Timezone),
		Open:                   config.String("BUSINESS_OPEN", def.Open),
		Close:                  config.String("BUSINESS_CLOSE", def.Close),
		LunchStart:             config.String("LUNCH_START", def.LunchStart),
		LunchEnd:               config.String("LUNCH_END", def.LunchEnd),
		SlotGranularityMinutes: gran,
	}
	c, err := rc.toConfig()
	if err != nil {
		return nil, err
	}
	return NewRegistry(c)
}

// Parse decodes a YAML schedule document. Omitted fields take the defaults.
func Parse(raw []byte) (*Registry, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if len(fc.Resources) == 0 {
		return nil, errors.New("schedule declares no resources")
	}
	configs := make([]Config, 0, len(fc.Resources))
	for _, rc := range fc.Resources {
		c, err := rc.withDefaults().toConfig()
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", rc.ID, err)
		}
		configs = append(configs, c)
	}
	return NewRegistry(configs...)
}

func (rc resourceConfig) withDefaults() resourceConfig {
	def := defaultResource()
	if rc.Timezone == "" {
		rc.Timezone = def.Timezone
	}
	if rc.Open == "" {
		rc.Open = def.Open
	}
	if rc.Close == "" {
		rc.Close = def.Close
	}
	if rc.LunchStart == "" && rc.LunchEnd == "" {
		rc.LunchStart, rc.LunchEnd = def.LunchStart, def.LunchEnd
	}
	if rc.SlotGranularityMinutes == 0 {
		rc.SlotGranularityMinutes = def.SlotGranularityMinutes
	}
	return rc
}

func (rc resourceConfig) toConfig() (Config, error) {
	loc, err := time.LoadLocation(rc.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("timezone: %w", err)
	}
	c := Config{
		ResourceID:  rc.ID,
		Location:    loc,
		Granularity: time.Duration(rc.SlotGranularityMinutes) * time.Minute,
	}
	for _, f := range []struct {
		dst *Clock
		raw string
	}{
		{&c.Open, rc.Open},
		{&c.Close, rc.Close},
		{&c.LunchStart, rc.LunchStart},
		{&c.LunchEnd, rc.LunchEnd},
	} {
		if *f.dst, err = ParseClock(f.raw); err != nil {
			return Config{}, err
		}
	}
	return c, c.Validate()
}
