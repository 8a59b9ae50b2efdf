package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store publishes the current thresholds to the pipeline. Readers call
// Current on every sample; writers swap the whole struct atomically, so a
// threshold change never tears mid-sample.
type Store struct {
	current atomic.Pointer[Thresholds]
}

// NewStore returns a store seeded with the given thresholds.
func NewStore(t Thresholds) *Store {
	s := &Store{}
	s.current.Store(&t)
	return s
}

// Current returns the thresholds in effect right now.
func (s *Store) Current() Thresholds {
	return *s.current.Load()
}

// Swap replaces the active thresholds.
func (s *Store) Swap(t Thresholds) {
	s.current.Store(&t)
}

// Watch re-reads thresholds whenever the config file changes. Invalid edits
// are reported through onErr and the previous thresholds stay in effect.
func (s *Store) Watch(v *viper.Viper, onSwap func(Thresholds), onErr func(error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		t, err := FromViper(v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		s.Swap(t)
		if onSwap != nil {
			onSwap(t)
		}
	})
	v.WatchConfig()
}
