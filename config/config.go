// Package config loads the compile-time-style knobs of the radio duty
// cycling layer from an INI file, with defaults matching spec.md §6.
package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	TotalSlots        int // number of slots per period
	CrankshaftPeriod  time.Duration
	BroadcastSlot     int
	ContentionSlots   int
	ContentionTicks   time.Duration
	ContentionPrepare time.Duration
	CCAContentionSize int
	ContentionSize    int
	MaxStrobeSize     int
	FillerByte        byte
	TurnOff           bool // keep-on flag when powering down between slots: false turns the radio off, true leaves it on
	MaxSeqnos         int

	AutoACK              bool
	AckLength            int
	AddressFilter        bool
	DuplicateSuppression bool

	// Ambient additions not named by spec.md but required by the
	// systems-language rewrite (see DESIGN.md, SPEC_FULL.md §6).
	QueueCapacity         int
	WatchdogThreshold     time.Duration
	AdvertiseWakeInterval bool
}

// Default returns the configuration spec.md §6 lists as defaults.
func Default() Config {
	return Config{
		TotalSlots:        12,
		CrankshaftPeriod:  180 * time.Millisecond,
		BroadcastSlot:     0,
		ContentionSlots:   4,
		ContentionTicks:   2 * time.Millisecond,
		ContentionPrepare: 2 * time.Millisecond,
		CCAContentionSize: 10,
		ContentionSize:    2,
		MaxStrobeSize:     64,
		FillerByte:        0x07,
		TurnOff:           false,
		MaxSeqnos:         16,

		AutoACK:              false,
		AckLength:            3,
		AddressFilter:        true,
		DuplicateSuppression: true,

		QueueCapacity:         8,
		WatchdogThreshold:     2 * time.Millisecond,
		AdvertiseWakeInterval: true,
	}
}

// RegularSlot is the nominal duration of one slot, derived as
// CrankshaftPeriod / TotalSlots (spec.md §1).
func (c Config) RegularSlot() time.Duration {
	return c.CrankshaftPeriod / time.Duration(c.TotalSlots)
}

// ContentionWindow is the full duration of one slot's contention phase:
// the settle time plus every sub-slot tick (spec.md §4.2 case 2, §4.4).
func (c Config) ContentionWindow() time.Duration {
	return c.ContentionPrepare + c.ContentionTicks*time.Duration(c.ContentionSlots)
}

// Validate checks the invariants the rest of this module relies on.
func (c Config) Validate() error {
	switch {
	case c.TotalSlots < 2:
		return errInvalid("total_slots must be >= 2")
	case c.BroadcastSlot < 0 || c.BroadcastSlot >= c.TotalSlots:
		return errInvalid("broadcast_slot out of range")
	case c.ContentionSlots < 1:
		return errInvalid("contention_slots must be >= 1")
	case c.MaxSeqnos < 1:
		return errInvalid("max_seqnos must be >= 1")
	case c.QueueCapacity < 1:
		return errInvalid("queue_capacity must be >= 1")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalid(msg string) error { return configError(msg) }

// Load reads an INI file shaped like:
//
//	[slots]
//	total = 12
//	broadcast = 0
//	period_ms = 180
//
//	[contention]
//	slots = 4
//	ticks_ms = 2
//	prepare_ms = 2
//	cca_size = 10
//	slot_size = 2
//	max_strobe = 64
//
//	[queue]
//	capacity = 8
//	max_seqnos = 16
//
//	[features]
//	auto_ack = false
//	address_filter = true
//	duplicate_suppression = true
//
// Any section or key that is absent keeps its Default() value. This
// mirrors the teacher's EDS-over-INI configuration loader
// (gopkg.in/ini.v1), generalized from object-dictionary entries to this
// layer's own knobs.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, err
	}

	if s := f.Section("slots"); s != nil {
		cfg.TotalSlots = s.Key("total").MustInt(cfg.TotalSlots)
		cfg.BroadcastSlot = s.Key("broadcast").MustInt(cfg.BroadcastSlot)
		cfg.CrankshaftPeriod = time.Duration(s.Key("period_ms").MustInt(int(cfg.CrankshaftPeriod/time.Millisecond))) * time.Millisecond
	}
	if s := f.Section("contention"); s != nil {
		cfg.ContentionSlots = s.Key("slots").MustInt(cfg.ContentionSlots)
		cfg.ContentionTicks = time.Duration(s.Key("ticks_ms").MustInt(int(cfg.ContentionTicks/time.Millisecond))) * time.Millisecond
		cfg.ContentionPrepare = time.Duration(s.Key("prepare_ms").MustInt(int(cfg.ContentionPrepare/time.Millisecond))) * time.Millisecond
		cfg.CCAContentionSize = s.Key("cca_size").MustInt(cfg.CCAContentionSize)
		cfg.ContentionSize = s.Key("slot_size").MustInt(cfg.ContentionSize)
		cfg.MaxStrobeSize = s.Key("max_strobe").MustInt(cfg.MaxStrobeSize)
	}
	if s := f.Section("queue"); s != nil {
		cfg.QueueCapacity = s.Key("capacity").MustInt(cfg.QueueCapacity)
		cfg.MaxSeqnos = s.Key("max_seqnos").MustInt(cfg.MaxSeqnos)
	}
	if s := f.Section("features"); s != nil {
		cfg.AutoACK = s.Key("auto_ack").MustBool(cfg.AutoACK)
		cfg.AddressFilter = s.Key("address_filter").MustBool(cfg.AddressFilter)
		cfg.DuplicateSuppression = s.Key("duplicate_suppression").MustBool(cfg.DuplicateSuppression)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
