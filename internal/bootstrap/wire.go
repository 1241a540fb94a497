package bootstrap

import (
	"go.uber.org/zap"

	"civicsos/internal/audio"
	"civicsos/internal/config"
	"civicsos/internal/domain"
	"civicsos/internal/media"
	"civicsos/internal/motion"
	"civicsos/internal/phrase"
	"civicsos/internal/ports"
	"civicsos/internal/providers/deepgram"
	"civicsos/internal/storage/badgerstore"
	"civicsos/internal/store"
	"civicsos/internal/syncbus"
	"civicsos/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Log         *zap.Logger
	Store       *store.Store
	Flow        *usecase.Flow
	Listener    *usecase.ListenController
	Coordinator *usecase.Coordinator
	Motion      *motion.Feed
}

// Close releases the store (which owns the snapshot store and the
// sync bus) and flushes the logger.
func (s Services) Close() error {
	err := s.Store.Close()
	_ = s.Log.Sync()
	return err
}

// Build wires all backend dependencies for the current runtime.
func Build(sink ports.EventSink, users usecase.UserSource, officials []domain.User) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return Services{}, err
	}

	snap, err := badgerstore.Open(badgerstore.Config{
		Path:     cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		return Services{}, err
	}

	bus, err := syncbus.NewFileBus(cfg.Store.SyncPath, logger)
	if err != nil {
		_ = snap.Close()
		return Services{}, err
	}

	st, err := store.New(snap, bus, logger, store.Options{
		Officials: officials,
		OnStorageError: func(error) {
			sink.Toast("Could not save data locally. Recent changes may not survive a restart.")
		},
	})
	if err != nil {
		_ = bus.Close()
		_ = snap.Close()
		return Services{}, err
	}

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	flow := usecase.NewFlow(
		media.NewRecorder(cfg.Audio.RecorderCommand),
		st,
		sink,
		logger,
		usecase.FlowConfig{
			HoldDuration:    cfg.SOS.HoldDuration,
			CountdownTicks:  cfg.SOS.CountdownTicks,
			TickInterval:    cfg.SOS.TickInterval,
			RecordingWindow: cfg.SOS.RecordingWindow,
			Recorder: ports.RecorderConfig{
				Audio:       audioCfg,
				VideoFormat: cfg.Video.InputFormat,
				VideoDevice: cfg.Video.InputDevice,
				OutputDir:   cfg.Video.OutputDir,
			},
		},
	)

	listener := usecase.NewListenController(
		audio.NewCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:     cfg.Deepgram.APIKey,
			APIBaseURL: cfg.Deepgram.APIBaseURL,
			Model:      cfg.Deepgram.Model,
			Language:   cfg.Deepgram.Language,
		}),
		sink,
		logger,
		usecase.ListenConfig{
			Audio: audioCfg,
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize: cfg.Listen.ChunkSize,
			Window:    cfg.Listen.Window,
		},
	)

	feed := motion.NewFeed(64)
	coordinator := usecase.NewCoordinator(
		feed,
		listener,
		func(secret string) (usecase.PhraseMatcher, error) {
			return phrase.NewMatcher(secret, cfg.Phrase.RulesPath)
		},
		flow,
		users,
		sink,
		logger,
		usecase.CoordinatorConfig{
			Threshold: cfg.Shake.Threshold,
			Debounce:  cfg.Shake.Debounce,
		},
	)

	return Services{
		Config:      cfg,
		Log:         logger,
		Store:       st,
		Flow:        flow,
		Listener:    listener,
		Coordinator: coordinator,
		Motion:      feed,
	}, nil
}
