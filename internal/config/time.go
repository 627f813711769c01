package config

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultDecayInterval  = time.Minute
	defaultImportInterval = 24 * time.Hour
)

var (
	decayInterval          atomic.Value
	importInterval         atomic.Value
	decayIntervalWatchers  []chan time.Duration
	importIntervalWatchers []chan time.Duration
	listenersMu            sync.Mutex
)

func init() {
	decayInterval.Store(defaultDecayInterval)
	importInterval.Store(defaultImportInterval)
}

func SetBetweenTime() {
	cfg := GetConfig()
	setDecayInterval(intervalOrDefault(cfg.Decay.Interval, defaultDecayInterval))
	setImportInterval(intervalOrDefault(cfg.Import.RefreshTimer, defaultImportInterval))
}

// CalculateBetweenTime converts timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// UnmarshalJSON replaces the whole timer, so fields missing from a supplied
// object are zero instead of keeping the value decoded before.
func (t *Timer) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	type plainTimer Timer
	var decoded plainTimer
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*t = Timer(decoded)
	return nil
}

func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

func intervalOrDefault(timer Timer, fallback time.Duration) time.Duration {
	if timer.IsZero() {
		return fallback
	}
	return CalculateBetweenTime(timer)
}

// GetDecayInterval is the pause between two decay cycles.
func GetDecayInterval() time.Duration {
	return decayInterval.Load().(time.Duration)
}

// DecayIntervalUpdates returns a channel that receives the current decay interval
// immediately and every later change.
func DecayIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	decayIntervalWatchers = append(decayIntervalWatchers, ch)
	listenersMu.Unlock()

	ch <- GetDecayInterval()
	return ch
}

func setDecayInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultDecayInterval
	}
	if GetDecayInterval() == interval {
		return
	}
	decayInterval.Store(interval)
	notify(&decayIntervalWatchers, interval)
}

func GetImportInterval() time.Duration {
	return importInterval.Load().(time.Duration)
}

func ImportIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	importIntervalWatchers = append(importIntervalWatchers, ch)
	listenersMu.Unlock()

	ch <- GetImportInterval()
	return ch
}

func setImportInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultImportInterval
	}
	if GetImportInterval() == interval {
		return
	}
	importInterval.Store(interval)
	notify(&importIntervalWatchers, interval)
}

// notify never blocks; a listener that has not drained its last value gets the newest one instead.
func notify(listeners *[]chan time.Duration, interval time.Duration) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range *listeners {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- interval:
		default:
		}
	}
}
