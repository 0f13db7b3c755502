package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/linkage-studio/engine/internal/api"
	"github.com/linkage-studio/engine/internal/config"
	"github.com/linkage-studio/engine/internal/dispatcher"
	"github.com/linkage-studio/engine/internal/handlers"
	"github.com/linkage-studio/engine/internal/influx"
	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/mechanism"
	"github.com/linkage-studio/engine/internal/monitor"
	"github.com/linkage-studio/engine/internal/motor"
	"github.com/linkage-studio/engine/internal/sim"
	"github.com/linkage-studio/engine/internal/storage"
	"github.com/linkage-studio/engine/pkg/core"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// engine defs - BuildDate can be set at build time via ldflags
var (
	CurrentEngineVersion string = "0.0.1"
	BuildDate            string = "unknown"

	AppName string = "linkage_engine"
)

// file paths
var (
	EngineLogFilePath string
	EngineLogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	SessionStartTime time.Time = time.Now()

	// Services
	engine          *sim.Engine
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	influxManager   *influx.Manager

	// Storage backend
	storageBackend storage.Backend

	// Playback state, shared between the command handlers and the tick loop.
	playing     atomic.Bool
	speedBits   atomic.Uint64
	heldNode    atomic.Value // mechanism.NodeID
	stopTicking chan struct{} = make(chan struct{})

	sessionName string
	sessionTag  string
)

func globalSpeed() float64 {
	return math.Float64frombits(speedBits.Load())
}

func setGlobalSpeed(v float64) {
	speedBits.Store(math.Float64bits(v))
}

func heldNodeID() mechanism.NodeID {
	if v := heldNode.Load(); v != nil {
		return v.(mechanism.NodeID)
	}
	return ""
}

func main() {
	var (
		configDir   = flag.String("config", ".", "directory containing linkage_engine.cfg.json")
		name        = flag.String("session", "Untitled Session", "session name for the recording")
		tag         = flag.String("tag", "", "tag attached to the recording")
		docPath     = flag.String("mechanism", "", "mechanism document to load on startup")
		fourBar     = flag.Bool("fourbar", false, "start from the four-bar preset instead of an empty canvas")
		interactive = flag.Bool("interactive", true, "read commands from stdin")
	)
	flag.Parse()

	sessionName = *name
	sessionTag = *tag

	setGlobalSpeed(1.0)
	heldNode.Store(mechanism.NodeID(""))

	setupLogging(*configDir)

	if err := setupEngine(); err != nil {
		Logger.Error("Failed to set up engine", "error", err)
		os.Exit(1)
	}

	if *fourBar {
		handlerService.GenerateFourBar(handlers.FourBarParams{
			CrankA: 1, CouplerB: 2.5, FollowerC: 2.5, GroundD: 3,
			EnforceGrashof: true,
		})
		Logger.Info("Loaded four-bar preset")
	}
	if *docPath != "" {
		data, err := os.ReadFile(*docPath)
		if err != nil {
			Logger.Error("Failed to read mechanism document", "error", err, "path", *docPath)
			os.Exit(1)
		}
		if err := handlerService.LoadDocument(data); err != nil {
			Logger.Error("Failed to parse mechanism document", "error", err, "path", *docPath)
			os.Exit(1)
		}
		Logger.Info("Loaded mechanism document", "path", *docPath)
	}

	if err := setupStorage(); err != nil {
		Logger.Error("Failed to set up storage", "error", err)
		os.Exit(1)
	}

	setupInflux()
	setupMonitor()

	go checkServerStatus()
	go runTickLoop()
	if *interactive {
		go readCommands(os.Stdin)
	}

	// block until interrupted, then flush everything
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	Logger.Info("Shutting down")
	shutdown()
}

func setupLogging(configDir string) {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	EngineLogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)

	var err error
	EngineLogFile, err = os.OpenFile(EngineLogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", EngineLogFilePath)
	}

	var graylogWriter *gelf.Writer
	if viper.GetBool("graylog.enabled") {
		graylogWriter, err = gelf.NewWriter(viper.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", viper.GetString("graylog.address"))
			graylogWriter = nil
		}
	}

	// Re-setup logging with file output and optional Graylog
	if graylogWriter != nil {
		SlogManager.Setup(EngineLogFile, viper.GetString("logLevel"), graylogWriter)
	} else {
		SlogManager.Setup(EngineLogFile, viper.GetString("logLevel"), nil)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", EngineLogFilePath)
}

func setupEngine() error {
	var err error
	engine, err = sim.NewEngine(mechanism.New(), sim.Config{
		Iterations: config.GetInt("solver.iterations"),
		Motor: motor.Config{
			BaseSpeed:       config.GetFloat("motor.baseSpeed"),
			PixelsPerRadian: config.GetFloat("motor.pixelsPerRadian"),
			FallbackRadius:  config.GetFloat("motor.fallbackRadius"),
		},
		TraceCapacity: config.GetInt("trace.capacity"),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	handlerService = handlers.NewService(handlers.Dependencies{
		LogManager: SlogManager,
	}, engine)

	setGlobalSpeed(config.GetFloat("sim.globalSpeed"))

	dispatcherLogger := logging.NewDispatcherLogger(
		zerolog.New(os.Stdout).With().Timestamp().Logger(),
	)
	eventDispatcher, err = dispatcher.New(dispatcherLogger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	registerCommandHandlers(eventDispatcher)
	Logger.Info("Dispatcher initialized with command handlers")

	return nil
}

func setupStorage() error {
	functionName := ":INIT:STORAGE:"

	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, SlogManager)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		SlogManager.WriteLog(functionName, fmt.Sprintf(`Error initializing %s backend: %v`, storageCfg.Backend, err), "ERROR")
		return err
	}
	storageBackend = backend
	Logger.Info("Storage backend initialized", "backend", storageCfg.Backend)

	return startSession()
}

func startSession() error {
	doc, err := handlerService.ExportDocument()
	if err != nil {
		return fmt.Errorf("failed to snapshot mechanism: %w", err)
	}
	report := handlerService.Mobility()
	m := engine.Mechanism()

	session := &core.Session{
		Name:             sessionName,
		StartTime:        SessionStartTime,
		EngineVersion:    CurrentEngineVersion,
		TickRate:         config.GetInt("sim.tickRate"),
		SolverIterations: config.GetInt("solver.iterations"),
		GlobalSpeed:      globalSpeed(),
		Tag:              sessionTag,
	}
	info := &core.MechanismInfo{
		Name:           sessionName,
		Document:       doc,
		NodeCount:      len(m.Nodes),
		LinkCount:      len(m.Links),
		Mobility:       report.Mobility,
		Classification: string(report.Classification),
	}

	if err := storageBackend.StartSession(session, info); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	Logger.Info("Session started", "name", sessionName, "mobility", report.Mobility)
	return nil
}

func setupInflux() {
	if !viper.GetBool("influx.enabled") {
		return
	}

	logsDir := viper.GetString("logsDir")
	influxManager = influx.NewManager(
		zerolog.New(os.Stdout).With().Timestamp().Logger(),
		logsDir,
	)
	if err := influxManager.Connect(); err != nil {
		Logger.Warn("Failed to connect to InfluxDB, metrics disabled", "error", err)
		influxManager = nil
		return
	}
	influxManager.CreateWriters()
	Logger.Info("InfluxDB metrics enabled")
}

func setupMonitor() {
	monitorService = monitor.NewService(monitor.Dependencies{
		LogManager:  SlogManager,
		Engine:      engine,
		Backend:     storageBackend,
		Influx:      influxManager,
		SessionName: sessionName,
	})
	if !monitorService.IsRunning() {
		monitorService.Start(5 * time.Second)
	}
}

// runTickLoop is the tick driver: AdvanceTick at the configured rate, then
// persist the frame and any new trace samples.
func runTickLoop() {
	functionName := ":TICK:LOOP:"

	tickRate := config.GetInt("sim.tickRate")
	if tickRate <= 0 {
		tickRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-stopTicking:
			return
		case <-ticker.C:
			start := time.Now()

			wasPlaying := playing.Load()
			positions := engine.AdvanceTick(wasPlaying, globalSpeed(), heldNodeID())
			if monitorService != nil {
				monitorService.ObserveTickDuration(time.Since(start))
			}
			if !wasPlaying {
				continue
			}

			frame := buildFrame(engine.Tick(), positions)
			if err := storageBackend.RecordFrame(frame); err != nil {
				SlogManager.WriteLog(functionName, fmt.Sprintf(`Error recording frame: %v`, err), "ERROR")
			}
			recordNewTraces(engine.Tick())
		}
	}
}

func buildFrame(tick uint64, positions map[mechanism.NodeID]mechanism.Position2D) *core.Frame {
	m := engine.Mechanism()
	frame := &core.Frame{
		Tick:     tick,
		Time:     time.Now(),
		Residual: engine.Residual(),
		Poses:    make([]core.NodePose, 0, len(positions)),
	}
	for id, pos := range positions {
		pose := core.NodePose{NodeID: string(id), X: pos.X, Y: pos.Y}
		if n, ok := m.Node(id); ok {
			pose.Fixed = n.Fixed
			pose.Driven = n.IsMotor()
		}
		frame.Poses = append(frame.Poses, pose)
	}
	return frame
}

// recordNewTraces streams this tick's tracer samples to the backend. The
// recorder keeps its own ring for CSV export; the backend gets each sample
// exactly once.
func recordNewTraces(tick uint64) {
	for _, s := range engine.Recorder().Samples() {
		if s.Tick != tick {
			continue
		}
		sample := &core.TraceSample{Tick: s.Tick, NodeID: string(s.NodeID), X: s.X, Y: s.Y}
		if err := storageBackend.RecordTrace(sample); err != nil {
			SlogManager.WriteLog(":TICK:LOOP:", fmt.Sprintf(`Error recording trace sample: %v`, err), "ERROR")
		}
	}
}

func checkServerStatus() {
	// healthcheck against the studio web frontend, informational only
	_, err := http.Get(viper.GetString("api.serverUrl") + "/healthcheck")
	if err != nil {
		Logger.Info("Studio frontend is offline")
	} else {
		Logger.Info("Studio frontend is online")
	}
}

func shutdown() {
	close(stopTicking)

	if monitorService != nil {
		monitorService.Stop()
	}

	if storageBackend != nil {
		if err := storageBackend.EndSession(); err != nil {
			Logger.Error("Failed to end session", "error", err)
		}
		uploadRecording()
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}

	writeTraceCSV()

	if EngineLogFile != nil {
		EngineLogFile.Close()
	}
}

// uploadRecording pushes an exported replay file to the studio web frontend,
// for backends that produce one.
func uploadRecording() {
	uploadable, ok := storageBackend.(storage.Uploadable)
	if !ok {
		return
	}
	path := uploadable.GetExportedFilePath()
	if path == "" {
		return
	}

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		Logger.Warn("Studio frontend unreachable, skipping upload", "error", err, "file", path)
		return
	}
	if err := client.Upload(path, uploadable.GetExportMetadata()); err != nil {
		Logger.Error("Failed to upload recording", "error", err, "file", path)
		return
	}
	Logger.Info("Recording uploaded", "file", path)
}

func writeTraceCSV() {
	rec := engine.Recorder()
	if len(rec.Samples()) == 0 {
		return
	}

	path := logging.LogFilePath(viper.GetString("logsDir"), AppName+".traces", SessionStartTime) + ".csv"
	f, err := os.Create(path)
	if err != nil {
		Logger.Error("Failed to create trace CSV", "error", err, "path", path)
		return
	}
	defer f.Close()
	if err := rec.WriteCSV(f); err != nil {
		Logger.Error("Failed to write trace CSV", "error", err, "path", path)
		return
	}
	Logger.Info("Trace history written", "path", path)
}
