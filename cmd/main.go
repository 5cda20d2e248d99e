package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/ehwaz/featureflag"
	ehwazhttp "github.com/aukilabs/ehwaz/http"
	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/ehwaz/scene"
	"github.com/aukilabs/ehwaz/simulation"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The Ehwaz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "ehwaz_info",
		Help:        "Ehwaz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr          string           `cli:""        env:"EHWAZ_ADDR"           help:"Listening address for API requests."`
	AdminAddr     string           `cli:""        env:"EHWAZ_ADMIN_ADDR"     help:"Admin listening address."`
	LogLevel      string           `cli:""        env:"EHWAZ_LOG_LEVEL"      help:"Log level (debug|info|warning|error)."`
	LogIndent     bool             `cli:""        env:"EHWAZ_LOG_INDENT"     help:"Indent logs."`
	FrameDuration time.Duration    `cli:",hidden" env:"EHWAZ_FRAME_DURATION" help:"The duration of a space frame. Octrees are updated once per frame."`
	Octree        octreeConfig     `cli:""        env:"-"                    help:"Octree configuration."`
	SceneFile     string           `cli:""        env:"EHWAZ_SCENE_FILE"     help:"A YAML or TOML file describing a space to create at startup."`
	Simulate      simulationConfig `cli:""        env:"-"                    help:"Simulation configuration."`
	Events        eventsConfig     `cli:",hidden" env:"-"                    help:"Event pusher configuration."`
	FeatureFlags  []string         `cli:",hidden" env:"EHWAZ_FEATURE_FLAGS"  help:"Comma separated feature flags"`
	Version       bool             `cli:""        env:"-"                    help:"Show version."`
	Help          bool             `cli:""        env:"-"                    help:"Show help."`
}

type octreeConfig struct {
	Capacity   int     `cli:"" env:"EHWAZ_OCTREE_CAPACITY"    help:"The number of entities a node holds before being subdivided."`
	MaxDepth   int     `cli:"" env:"EHWAZ_OCTREE_MAX_DEPTH"   help:"The depth past which nodes are not subdivided."`
	HalfExtent float64 `cli:"" env:"EHWAZ_OCTREE_HALF_EXTENT" help:"The half extent of the region of spaces created without one."`
}

type simulationConfig struct {
	Walkers int     `cli:"" env:"EHWAZ_SIMULATE_WALKERS" help:"The number of simulated entities moving in the startup space."`
	Speed   float64 `cli:"" env:"EHWAZ_SIMULATE_SPEED"   help:"The speed of simulated entities, in units per second."`
	Seed    int64   `cli:"" env:"EHWAZ_SIMULATE_SEED"    help:"The seed of simulated movements."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"EHWAZ_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"EHWAZ_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"EHWAZ_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"EHWAZ_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:          ":4100",
		AdminAddr:     ":18191",
		LogLevel:      logs.InfoLevel.String(),
		FrameDuration: time.Millisecond * 15,
		Octree: octreeConfig{
			Capacity:   octree.DefaultCapacity,
			MaxDepth:   octree.DefaultMaxDepth,
			HalfExtent: 64,
		},
		Simulate: simulationConfig{
			Speed: 2,
			Seed:  time.Now().UnixNano(),
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Ehwaz server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	featureFlags, err := featureflag.New(conf.FeatureFlags)
	if err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "ehwaz",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	spaces := models.SpaceStore{}
	defer spaces.Close()

	api := ehwazhttp.API{
		Spaces:        &spaces,
		FrameDuration: conf.FrameDuration,
		Region: octree.Region{
			HalfExtent: octree.NewVector3f(
				float32(conf.Octree.HalfExtent),
				float32(conf.Octree.HalfExtent),
				float32(conf.Octree.HalfExtent),
			),
		},
		Octree: octree.Config{
			Capacity: conf.Octree.Capacity,
			MaxDepth: conf.Octree.MaxDepth,
		},
		FeatureFlags: featureFlags,
	}

	if conf.SceneFile != "" || conf.Simulate.Walkers != 0 {
		stop, err := startSpace(&api, conf)
		if err != nil {
			logs.Fatal(errors.New("starting space failed").Wrap(err))
		}
		defer stop()
	}

	var service http.ServeMux
	service.Handle("/health", ehwazhttp.HandleWithCORS(http.HandlerFunc(ehwazhttp.HandleHealthCheck)))
	service.Handle("/ready", ehwazhttp.HandleWithCORS(ehwazhttp.HandleReadyCheck(func() bool { return true })))
	service.Handle("/version", ehwazhttp.HandleWithCORS(ehwazhttp.HandleVersion(version)))
	service.Handle("/", ehwazhttp.HandleWithCORS(api.Handler(ctx)))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", ehwazhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("addr", conf.Addr).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting ehwaz server")

	ehwazhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			ehwazhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

// startSpace creates the startup space from the scene file and starts its
// simulation.
func startSpace(api *ehwazhttp.API, conf config) (stop func(), err error) {
	s := scene.Scene{
		Name:   "default",
		Region: api.Region,
	}
	if conf.SceneFile != "" {
		if s, err = scene.Load(conf.SceneFile); err != nil {
			return nil, err
		}
	}

	space, err := api.CreateSpace(s.Region, s.OctreeConfig(api.Octree))
	if err != nil {
		return nil, err
	}

	if _, err := s.Populate(space); err != nil {
		return nil, err
	}

	stop = func() {}
	if conf.Simulate.Walkers != 0 {
		sim, err := simulation.New(space, simulation.Config{
			Walkers: conf.Simulate.Walkers,
			Speed:   float32(conf.Simulate.Speed),
			Seed:    conf.Simulate.Seed,
		})
		if err != nil {
			return nil, err
		}
		stop = sim.Start()
	}

	logs.WithTag("space_id", space.ID).
		WithTag("scene", s.Name).
		WithTag("entities", space.EntityCount()).
		WithTag("walkers", conf.Simulate.Walkers).
		Info("startup space created")
	return stop, nil
}

func validateConfig(conf config) error {
	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.Octree.Capacity < 0 || conf.Octree.MaxDepth < 0 {
		return errors.New("octree capacity and max depth can't be negative").
			WithTag("capacity", conf.Octree.Capacity).
			WithTag("max_depth", conf.Octree.MaxDepth)
	}

	if conf.Octree.HalfExtent <= 0 {
		return errors.New("octree half extent must be positive").
			WithTag("half_extent", conf.Octree.HalfExtent)
	}

	if conf.Simulate.Walkers < 0 {
		return errors.New("the number of simulated walkers can't be negative").
			WithTag("walkers", conf.Simulate.Walkers)
	}

	if conf.Simulate.Walkers != 0 && conf.Simulate.Speed <= 0 {
		return errors.New("simulation speed must be positive").
			WithTag("speed", conf.Simulate.Speed)
	}

	return nil
}
