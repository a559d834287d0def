// The agent is a headless room participant. It joins a room, negotiates
// links with everyone it meets, wanders the scene and optionally shares a
// synthetic screen. Useful for load tests and for populating a room during
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vroom/internal/client"
	"vroom/internal/client/media"
	"vroom/internal/client/peer"
	"vroom/internal/client/render"
	"vroom/internal/core/domain"
	"vroom/pkg/config"
	"vroom/pkg/logger"
	"vroom/pkg/utils"

	"github.com/pion/webrtc/v3"
)

func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:8000/ws", "relay websocket URL")
		room       = flag.String("room", "lobby", "room to join")
		name       = flag.String("name", "", "display name (random when empty)")
		withMedia  = flag.Bool("media", true, "publish synthetic audio and video")
		withShare  = flag.Bool("share", false, "request a screen-share slot after joining")
		shareDelay = flag.Duration("share-delay", 5*time.Second, "wait before requesting the share slot")
		configPath = flag.String("config", "configs/config.yaml", "config file path")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	displayName := *name
	if displayName == "" {
		displayName = "agent-" + utils.NewParticipantID()[:8]
	}

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	opts := client.Options{
		ServerURL:          *serverURL,
		Room:               *room,
		Name:               displayName,
		Factory:            peer.NewWebRTCFactory(iceServers, log),
		Renderer:           render.Log{Logger: log},
		Logger:             log,
		NegotiationTimeout: cfg.WebRTC.NegotiationTimeout,
		PositionThreshold:  cfg.Presence.PositionThreshold,
		RotationThreshold:  cfg.Presence.RotationThreshold,
		MaxUpdateRate:      cfg.Presence.MaxUpdateRate,
		SampleInterval:     cfg.Presence.SampleInterval,
	}
	if *withMedia {
		opts.Media = func() []media.Source {
			return []media.Source{
				media.NewSyntheticAudio("audio", "agent"),
				media.NewSyntheticVideo("video", "agent"),
			}
		}
	}
	if *withShare {
		opts.Share = func() media.Source {
			return media.NewSyntheticScreen("screen", "agent-screen")
		}
	}

	session, err := client.NewSession(opts)
	if err != nil {
		log.Fatalw("failed to create session", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down agent")
		cancel()
	}()

	go wander(ctx, session)

	if *withShare {
		go func() {
			select {
			case <-time.After(*shareDelay):
				session.StartScreenShare()
			case <-ctx.Done():
			}
		}()
	}

	if err := session.Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorw("session ended", "error", err)
		os.Exit(1)
	}
}

// wander walks the avatar around the origin and slowly spins it, feeding
// samples faster than the presence thresholds let through.
func wander(ctx context.Context, session *client.Session) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	angle := rand.Float64() * 2 * math.Pi
	radius := 3 + rand.Float64()*5
	heading := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			angle += 0.02
			heading += 0.5 // degrees per tick

			half := heading * math.Pi / 360
			session.SetTransform(domain.Transform{
				Position: domain.Vector3{
					radius * math.Cos(angle),
					0,
					radius * math.Sin(angle),
				},
				Rotation: domain.Quaternion{0, math.Sin(half), 0, math.Cos(half)},
			})
		}
	}
}
