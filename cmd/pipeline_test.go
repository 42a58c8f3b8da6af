// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scope/internal/audio"
	"scope/internal/config"
	"scope/internal/transport/udp"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = 8000
	cfg.Scope.Buckets = 100
	cfg.Scope.Window = time.Second
	cfg.Scope.RefreshInterval = 5 * time.Millisecond
	cfg.Meter.Buckets = 10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// writeMonoWAV writes frames 16-bit samples of a constant value.
func writeMonoWAV(t *testing.T, rate, frames, value int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create WAV file: %v", err)
	}
	defer f.Close()

	data := make([]int, frames)
	for i := range data {
		data[i] = value
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("failed to encode WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finish WAV: %v", err)
	}
	return path
}

func TestPipelineReplay(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg)
	path := writeMonoWAV(t, 8000, 8000, 16384) // one second at half scale

	st, err := audio.Replay(context.Background(), path, p.Bus, audio.ReplayOptions{Meter: p.Meter})
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if st.Frames != 8000 {
		t.Errorf("replayed %d frames, want 8000", st.Frames)
	}

	if !p.Scope.Refresh() {
		t.Fatal("Refresh found no samples")
	}
	f := p.Scope.Frame()
	if len(f.Peaks) != cfg.Scope.Buckets {
		t.Fatalf("len(Peaks) = %d, want %d", len(f.Peaks), cfg.Scope.Buckets)
	}
	if got := f.Peaks[len(f.Peaks)-1]; math.Abs(float64(got)-0.5) > 1e-3 {
		t.Errorf("newest peak = %v, want 0.5", got)
	}
	if f.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", f.Dropped)
	}

	meter := make([]float32, p.Meter.Len())
	if _, ok := p.Meter.Latest(meter); !ok {
		t.Fatal("meter published nothing")
	}
	if got := meter[len(meter)-1]; math.Abs(float64(got)-0.5) > 1e-3 {
		t.Errorf("newest meter level = %v, want 0.5", got)
	}
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.LogFrames = true
	cfg.Transport.WebSocketEnabled = true
	cfg.Transport.WebSocketAddress = "127.0.0.1:0"
	p := newTestPipeline(t, cfg)

	if p.WebSocketAddr() == "" {
		t.Error("WebSocket server not listening")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Errorf("Run returned %v after cancellation, want nil", err)
	}
}

func TestPipelineUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP error: %v", err)
	}
	defer conn.Close()

	cfg := testConfig(t)
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = conn.LocalAddr().String()
	cfg.Transport.UDPSendInterval = 5 * time.Millisecond
	p := newTestPipeline(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	buf := make([]byte, 1<<16)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no packet received: %v", err)
	}
	pkt, err := udp.DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if len(pkt.Values) != cfg.Scope.Buckets {
		t.Errorf("packet carries %d values, want %d", len(pkt.Values), cfg.Scope.Buckets)
	}
}

func TestNewPipelineRejectsBadWebSocketAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.WebSocketEnabled = true
	cfg.Transport.WebSocketAddress = "256.0.0.1:bad"
	if p, err := NewPipeline(cfg); err == nil {
		p.Close()
		t.Fatal("expected listen error")
	}
}

func TestPipelineReplayFlushesTail(t *testing.T) {
	tests := []struct {
		name     string
		frames   int
		realtime bool
	}{
		// Three seconds through a 256-sample bus laps it many times over.
		{"Unpaced", 3 * 8000, false},
		{"Paced", 240, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Bus.Capacity = 256
			cfg.Audio.FramesPerBuffer = 256
			cfg.Transport.LogFrames = true
			p := newTestPipeline(t, cfg)
			path := writeMonoWAV(t, 8000, tt.frames, 16384)

			st, err := p.Replay(context.Background(), path, audio.ReplayOptions{
				BlockFrames: cfg.Audio.FramesPerBuffer,
				Realtime:    tt.realtime,
			})
			if err != nil {
				t.Fatalf("Replay error: %v", err)
			}
			if st.Frames != int64(tt.frames) {
				t.Errorf("replayed %d frames, want %d", st.Frames, tt.frames)
			}

			f := p.Scope.Frame()
			if f.Dropped != 0 {
				t.Errorf("Dropped = %d, want 0", f.Dropped)
			}
			if got := f.Peaks[len(f.Peaks)-1]; math.Abs(float64(got)-0.5) > 1e-3 {
				t.Errorf("newest peak = %v, want 0.5", got)
			}
			if p.Bus.Stats().Dropped != 0 {
				t.Errorf("bus Stats().Dropped = %d, want 0", p.Bus.Stats().Dropped)
			}
			if p.logs.Sent() == 0 {
				t.Error("final frame never reached the sinks")
			}
		})
	}
}
