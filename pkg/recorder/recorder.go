// Package recorder owns the stream read loop: it pulls raw bytes off
// a stream channel, runs them through the demultiplexer and selective
// decrypt stages, and forwards completed frames to whatever sinks the
// caller wired up (elementary-stream files and/or a live RTSP server).
package recorder

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	v380crypto "github.com/ethan/v380-relay/pkg/crypto"
	"github.com/ethan/v380-relay/pkg/demux"
	"github.com/ethan/v380-relay/pkg/v380"
	"github.com/ethan/v380-relay/pkg/v380err"
)

const readChunkSize = 64 * 1024

// videoDecryptThreshold is the minimum reassembled payload length at
// which a P-frame is still worth decrypting; shorter payloads can't
// contain a full AES block window and the camera leaves them plain.
const videoDecryptThreshold = 64

// Sinks receives dispatched frames. Both methods are called from the
// single recorder goroutine, never concurrently.
type Sinks struct {
	OnVideoFrame func(kind demux.Kind, payload []byte)
	OnAudioFrame func(payload []byte)
}

// Recorder drives the read loop for one camera session.
type Recorder struct {
	stream *v380.StreamChannel
	demux  *demux.Demuxer
	key    v380crypto.Key
	sinks  Sinks
	logger *slog.Logger

	duration time.Duration

	videoPacketCount atomic.Uint64
	audioPacketCount atomic.Uint64
	videoFrameCount  atomic.Uint64
	audioFrameCount  atomic.Uint64
	startTime        time.Time

	wg sync.WaitGroup
}

// New constructs a Recorder. duration <= 0 means run until ctx is
// canceled.
func New(stream *v380.StreamChannel, key v380crypto.Key, sinks Sinks, duration time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		stream:   stream,
		demux:    demux.New(logger),
		key:      key,
		sinks:    sinks,
		logger:   logger,
		duration: duration,
	}
}

// Run blocks, draining the stream channel until duration elapses,
// ctx is canceled, or a transport error occurs. On cancellation the
// loop returns cleanly after flushing any complete frame buffered by
// the demuxer; any still-open fragmented frame is simply dropped.
func (r *Recorder) Run(ctx context.Context) error {
	r.startTime = time.Now()

	statsCtx, stopStats := context.WithCancel(ctx)
	r.wg.Add(1)
	go r.statsLoop(statsCtx)
	defer func() {
		stopStats()
		r.wg.Wait()
	}()

	var deadline time.Time
	if r.duration > 0 {
		deadline = r.startTime.Add(r.duration)
	}

	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return v380err.Cancellationf("recorder.run")
		default:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			r.logger.Info("recording duration elapsed")
			return nil
		}

		n, err := r.stream.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if _, kaErr := r.stream.MaybeKeepalive(true); kaErr != nil {
					return kaErr
				}
				continue
			}
			return err
		}

		frames := r.demux.Feed(buf[:n])
		for _, f := range frames {
			r.dispatch(f)
		}

		if sent, err := r.stream.MaybeKeepalive(false); err != nil {
			return err
		} else if sent {
			r.logger.Debug("cadence keepalive sent")
		}
	}
}

// dispatch applies the selective decrypt rule and forwards the
// plaintext frame to the configured sinks.
func (r *Recorder) dispatch(f demux.Frame) {
	switch f.Kind {
	case demux.KindAudio:
		r.audioPacketCount.Add(1)
		plain, err := v380crypto.DecryptAudio(r.key, f.Payload)
		if err != nil {
			r.logger.Warn("audio decrypt failed", "error", err)
			return
		}
		r.audioFrameCount.Add(1)
		if r.sinks.OnAudioFrame != nil {
			r.sinks.OnAudioFrame(plain)
		}

	case demux.KindIFrame, demux.KindPFrame:
		r.videoPacketCount.Add(1)
		plain := f.Payload
		if f.Kind == demux.KindIFrame || len(f.Payload) >= videoDecryptThreshold {
			decrypted, err := v380crypto.DecryptVideo6480(r.key, f.Payload)
			if err != nil {
				r.logger.Warn("video decrypt failed", "error", err)
				return
			}
			plain = decrypted
		}
		r.videoFrameCount.Add(1)
		if r.sinks.OnVideoFrame != nil {
			r.sinks.OnVideoFrame(f.Kind, plain)
		}
	}
}

func (r *Recorder) statsLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("recorder statistics",
				"uptime", time.Since(r.startTime).Round(time.Second),
				"video_packets", r.videoPacketCount.Load(),
				"video_frames", r.videoFrameCount.Load(),
				"audio_packets", r.audioPacketCount.Load(),
				"audio_frames", r.audioFrameCount.Load(),
			)
		}
	}
}

// Stats is a point-in-time snapshot for logging at shutdown.
type Stats struct {
	Uptime       time.Duration
	VideoPackets uint64
	VideoFrames  uint64
	AudioPackets uint64
	AudioFrames  uint64
}

// Snapshot returns the current counters.
func (r *Recorder) Snapshot() Stats {
	return Stats{
		Uptime:       time.Since(r.startTime),
		VideoPackets: r.videoPacketCount.Load(),
		VideoFrames:  r.videoFrameCount.Load(),
		AudioPackets: r.audioPacketCount.Load(),
		AudioFrames:  r.audioFrameCount.Load(),
	}
}
