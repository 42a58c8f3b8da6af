// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"scope/internal/bus"
	"scope/internal/config"
	applog "scope/internal/log"
	"scope/internal/scope"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedWAV is returned for files that are not integer PCM WAV.
var ErrUnsupportedWAV = errors.New("unsupported WAV file")

const wavFormatPCM = 1

// ReplayOptions controls Replay.
type ReplayOptions struct {
	BlockFrames int                 // Frames per published block, DefaultFramesPerBuffer when 0.
	Realtime    bool                // Pace blocks at the file's sample rate.
	Meter       *scope.Tap[float32] // Optional level meter fed like the capture engine.

	// AfterBlock, if set, runs on the replay goroutine after each block is
	// published. Unpaced replay uses it to drain the bus before it laps.
	AfterBlock func()
}

// ReplayStats describes a finished replay.
type ReplayStats struct {
	SampleRate float64       `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Frames     int64         `json:"frames"`
	Duration   time.Duration `json:"duration"` // audio time published
}

// Replay decodes a PCM WAV file and publishes it to b as mono blocks,
// the same way the capture engine does. The bus sample rate is set from the
// file header first. Replay stops early when ctx is done.
func Replay(ctx context.Context, path string, b *bus.Bus, opts ReplayOptions) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return ReplayStats{}, fmt.Errorf("%w: %s is not a WAV file", ErrUnsupportedWAV, path)
	}
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return ReplayStats{}, fmt.Errorf("failed to read WAV header of %s: %w", path, err)
	}

	st := ReplayStats{
		SampleRate: float64(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if d.WavAudioFormat != wavFormatPCM {
		return st, fmt.Errorf("%w: audio format %d, only integer PCM is supported", ErrUnsupportedWAV, d.WavAudioFormat)
	}
	if st.BitDepth != 16 && st.BitDepth != 24 && st.BitDepth != 32 {
		return st, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, st.BitDepth)
	}
	if st.Channels < 1 || st.Channels > config.MaxChannels {
		return st, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, st.Channels)
	}

	if err := b.SetSampleRate(st.SampleRate); err != nil {
		return st, fmt.Errorf("WAV file %s: %w", path, err)
	}
	if opts.Meter != nil {
		if err := opts.Meter.SetSampleRate(st.SampleRate); err != nil {
			return st, err
		}
	}

	frames := opts.BlockFrames
	if frames <= 0 {
		frames = config.DefaultFramesPerBuffer
	}
	pcm := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: st.Channels, SampleRate: int(d.SampleRate)},
		Data:   make([]int, frames*st.Channels),
	}
	interleaved := make([]float32, frames*st.Channels)
	mono := make([]float32, frames)
	scale := 1 / float32(int64(1)<<(st.BitDepth-1))

	applog.Infof("replay: %s, %d channel(s), %d-bit at %.0f Hz", path, st.Channels, st.BitDepth, st.SampleRate)

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		pcm.Data = pcm.Data[:cap(pcm.Data)]
		n, err := d.PCMBuffer(pcm)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if n == 0 {
			break
		}
		for i, v := range pcm.Data[:n] {
			interleaved[i] = float32(v) * scale
		}
		m := bus.Downmix(mono, interleaved[:n], st.Channels)
		if m == 0 {
			break
		}

		b.PublishBlock(mono[:m])
		if opts.Meter != nil {
			opts.Meter.Process(mono[:m])
		}
		if opts.AfterBlock != nil {
			opts.AfterBlock()
		}
		st.Frames += int64(m)
		st.Duration = time.Duration(float64(st.Frames) / st.SampleRate * float64(time.Second))

		if opts.Realtime {
			if wait := time.Until(start.Add(st.Duration)); wait > 0 {
				select {
				case <-ctx.Done():
					return st, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
	}

	applog.Debugf("replay: published %d frames (%s) from %s", st.Frames, st.Duration, path)
	return st, nil
}
