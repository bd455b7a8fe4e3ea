// Command v380stream logs in to a V380 4G camera's cloud relay,
// opens its stream channel and records the decrypted video and audio
// elementary streams to disk, optionally re-serving the video over a
// local RTSP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/v380-relay/pkg/config"
	v380crypto "github.com/ethan/v380-relay/pkg/crypto"
	"github.com/ethan/v380-relay/pkg/demux"
	"github.com/ethan/v380-relay/pkg/logger"
	"github.com/ethan/v380-relay/pkg/recorder"
	"github.com/ethan/v380-relay/pkg/rtsp"
	"github.com/ethan/v380-relay/pkg/v380"
)

func main() {
	fs := flag.NewFlagSet("v380stream", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	opts := config.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "V380 4G camera cloud-relay recorder\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	log.Info("starting v380stream", "log_config", logFlags.String())

	endpoints, err := opts.Validate()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := v380.Register(endpoints, opts.DeviceID, endpoints.StreamPort, log.With("component", "register").Logger); err != nil {
		log.Warn("registration failed, continuing to login", "error", err)
	} else {
		log.Info("cloud registration succeeded")
	}

	controlClient := v380.NewClient(endpoints, log.With("component", "control").Logger)
	if err := controlClient.Connect(); err != nil {
		log.Error("failed to connect control channel", "error", err)
		os.Exit(1)
	}
	defer controlClient.Close()

	loginResult, err := controlClient.Login(opts.DeviceID, opts.Password, endpoints.StreamPort)
	if err != nil {
		log.Error("login failed", "error", err)
		os.Exit(1)
	}
	controlClient.Close()

	handle := loginResult.Handle
	if opts.HasHandleOverride() {
		handle = uint32(opts.HandleOverride)
	}
	session := v380.Session{DeviceID: opts.DeviceID, ID: loginResult.Session, Handle: handle}
	log.Info("login succeeded", "session_id", session.ID, "handle", session.Handle)

	key := v380crypto.DeriveKey(session.Handle)

	stream, err := v380.Open(endpoints, opts.DeviceID, session, log.With("component", "stream").Logger)
	if err != nil {
		log.Error("failed to open stream channel", "error", err)
		os.Exit(1)
	}
	defer stream.Close()
	log.Info("stream channel open")

	now := time.Now()
	videoWriter, err := recorder.NewElementaryStreamWriter(opts.OutputDir, "video", "h265", now)
	if err != nil {
		log.Error("failed to create video output", "error", err)
		os.Exit(1)
	}
	defer videoWriter.Close()

	var audioWriter *recorder.ElementaryStreamWriter
	if opts.EnableAudio {
		audioWriter, err = recorder.NewElementaryStreamWriter(opts.OutputDir, "audio", "aac", now)
		if err != nil {
			log.Error("failed to create audio output", "error", err)
			os.Exit(1)
		}
		defer audioWriter.Close()
	}

	var rtspServer *rtsp.Server
	if opts.EnableRTSP {
		rtspServer, err = rtsp.NewServer(opts.RTSPPort, log.With("component", "rtsp").Logger)
		if err != nil {
			log.Error("failed to construct rtsp server", "error", err)
			os.Exit(1)
		}
		if err := rtspServer.Start(ctx); err != nil {
			log.Error("failed to start rtsp server", "error", err)
			os.Exit(1)
		}
		defer rtspServer.Stop()
		log.Info("rtsp server listening", "port", opts.RTSPPort)
	}

	rec := recorder.New(stream, key, buildSinks(videoWriter, audioWriter, rtspServer), time.Duration(opts.Duration)*time.Second, log.Logger)

	log.Info("recording started", "device_id", opts.DeviceID, "duration_s", opts.Duration, "output_dir", opts.OutputDir)

	if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("recording stopped with error", "error", err)
		os.Exit(1)
	}

	snap := rec.Snapshot()
	log.Info("recording finished",
		"uptime", snap.Uptime.Round(time.Second),
		"video_packets", snap.VideoPackets,
		"video_frames", snap.VideoFrames,
		"audio_packets", snap.AudioPackets,
		"audio_frames", snap.AudioFrames,
	)
}

// buildSinks wires the recorder's decrypted-frame callbacks to
// whichever outputs were requested: the elementary-stream files
// always, the RTSP server only when enabled.
func buildSinks(video, audio *recorder.ElementaryStreamWriter, rtspServer *rtsp.Server) recorder.Sinks {
	return recorder.Sinks{
		OnVideoFrame: func(kind demux.Kind, payload []byte) {
			if err := video.Write(payload); err != nil {
				return
			}
			if rtspServer != nil {
				rtspServer.SendFrame(payload)
			}
		},
		OnAudioFrame: func(payload []byte) {
			if audio != nil {
				audio.Write(payload)
			}
		},
	}
}
