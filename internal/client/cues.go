package client

import (
	"log/slog"
	"time"

	"github.com/skald-ai/skald/pkg/audio"
)

const (
	earconSampleRate = 22050
	earconMaxWait    = 500 * time.Millisecond
)

// earconCues plays short audible cues through the shared output player,
// waiting briefly so the cue is not cut off by the next state change.
type earconCues struct {
	player rawPlayer
	volume float64
}

func newEarconCues(player rawPlayer, volume float64) *earconCues {
	if volume <= 0 {
		volume = audio.DefaultEarconVolume
	}
	return &earconCues{player: player, volume: volume}
}

// Play renders and plays the named earcon, waiting up to half a second for
// it to finish. Failures are logged; a missing cue never blocks the state
// machine.
func (c *earconCues) Play(name string) {
	samples, err := audio.Earcon(name, c.volume, earconSampleRate)
	if err != nil {
		slog.Warn("unknown earcon", "name", name, "error", err)
		return
	}
	if err := c.player.Play(samples, earconSampleRate); err != nil {
		slog.Warn("earcon playback failed", "name", name, "error", err)
		return
	}
	c.player.WaitUntilDone(earconMaxWait)
}
