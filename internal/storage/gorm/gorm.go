// Package gormstorage implements queue-buffered batch writes of session
// recordings through GORM. The sqlite and postgres backends compose it and
// only add their own connection handling.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/model"
	"github.com/linkage-studio/engine/internal/model/convert"
	"github.com/linkage-studio/engine/internal/queue"
	"github.com/linkage-studio/engine/pkg/core"
)

// writeInterval is the pause between write cycles of the DB writer goroutine.
const writeInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	NodeStates      *queue.Queue[model.NodeState]
	TraceSamples    *queue.Queue[model.TraceSample]
	TopologyEvents  *queue.Queue[model.TopologyEvent]
	MobilityResults *queue.Queue[model.MobilityResult]
	PerfSamples     *queue.Queue[model.PerfSample]
	TargetPaths     *queue.Queue[model.TargetPath]
}

func newQueues() *queues {
	return &queues{
		NodeStates:      queue.New[model.NodeState](),
		TraceSamples:    queue.New[model.TraceSample](),
		TopologyEvents:  queue.New[model.TopologyEvent](),
		MobilityResults: queue.New[model.MobilityResult](),
		PerfSamples:     queue.New[model.PerfSample](),
		TargetPaths:     queue.New[model.TargetPath](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// With a nil DB it runs in queue-only mode, which the unit tests rely on.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	stopChan  chan struct{}
	dbReady   bool

	lastDBWriteDuration time.Duration
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// AttachDB injects the database connection. Must be called before Init;
// the postgres backend dials lazily and uses this from its own Init.
func (b *Backend) AttachDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init creates internal queues, runs schema migration, and starts the DB
// writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB != nil {
		if err := b.setupDB(); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
		b.dbReady = true
	}

	b.startDBWriters()
	return nil
}

// setupDB migrates tables and creates the default engine info row if absent.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager

	if !db.Migrator().HasTable(&model.EngineInfo{}) {
		if err := db.AutoMigrate(&model.EngineInfo{}); err != nil {
			log.WriteLog("setupDB", fmt.Sprintf("Failed to create engine_infos table: %s", err), "ERROR")
			return fmt.Errorf("failed to auto-migrate EngineInfo: %w", err)
		}
		if err := db.Create(&model.EngineInfo{
			InstanceName: "Linkage Studio",
			Description:  "Planar linkage kinematics engine",
			Website:      "https://linkage.studio",
		}).Error; err != nil {
			return fmt.Errorf("failed to create engine info entry: %w", err)
		}
	}

	models := model.DatabaseModelsSQLite
	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS Extension created", "INFO")
		models = model.DatabaseModels
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close flushes pending rows and stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	if b.dbReady {
		b.writeAll()
	}
	return nil
}

// StartSession performs mechanism-doc get-or-insert and session create in the DB.
func (b *Backend) StartSession(coreSession *core.Session, coreMech *core.MechanismInfo) error {
	if b.deps.DB == nil {
		return nil
	}

	db := b.deps.DB
	log := b.deps.LogManager

	gormDoc := convert.MechanismToModel(coreMech)
	if _, err := gormDoc.GetOrInsert(db); err != nil {
		log.WriteLog("StartSession", fmt.Sprintf("Failed to get or insert mechanism doc: %v", err), "ERROR")
		return fmt.Errorf("failed to get or insert mechanism doc %s: %w", gormDoc.Name, err)
	}

	gormSession := convert.SessionToModel(coreSession, gormDoc.ID)
	if err := db.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	// Assign DB-generated IDs back to core types
	coreSession.ID = gormSession.ID
	coreMech.ID = gormDoc.ID

	// Store session ID for the DB writer goroutine
	b.sessionID.Store(uint64(gormSession.ID))

	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession drains the remaining queues so nothing recorded before the
// session boundary is lost.
func (b *Backend) EndSession() error {
	if b.dbReady {
		b.writeAll()
	}
	return nil
}

// RecordFrame flattens the frame into node state rows and queues them.
func (b *Backend) RecordFrame(f *core.Frame) error {
	rows := convert.FrameToNodeStates(0, f)
	b.queues.NodeStates.Push(rows...)
	return nil
}

// RecordTrace converts and queues a tracer sample.
func (b *Backend) RecordTrace(s *core.TraceSample) error {
	gormObj := convert.TraceToModel(0, s)
	b.queues.TraceSamples.Push(gormObj)
	return nil
}

// RecordTopologyEvent converts and queues an authoring event.
func (b *Backend) RecordTopologyEvent(e *core.TopologyEvent) error {
	gormObj := convert.TopologyEventToModel(0, e)
	b.queues.TopologyEvents.Push(gormObj)
	return nil
}

// RecordMobilityEvent converts and queues a mobility analysis result.
func (b *Backend) RecordMobilityEvent(e *core.MobilityEvent) error {
	gormObj := convert.MobilityEventToModel(0, e)
	b.queues.MobilityResults.Push(gormObj)
	return nil
}

// RecordPerfSample converts and queues a performance sample.
func (b *Backend) RecordPerfSample(p *core.PerfSample) error {
	gormObj := convert.PerfSampleToModel(0, p)
	b.queues.PerfSamples.Push(gormObj)
	return nil
}

// RecordTargetPath converts and queues an installed target path.
func (b *Backend) RecordTargetPath(p *core.TargetPath) error {
	gormObj := convert.TargetPathToModel(0, p)
	b.queues.TargetPaths.Push(gormObj)
	return nil
}

// QueueLengths reports rows still waiting for the DB writer goroutine.
func (b *Backend) QueueLengths() (frames, traces int) {
	if b.queues == nil {
		return 0, 0
	}
	return b.queues.NodeStates.Len(), b.queues.TraceSamples.Len()
}

// GetLastDBWriteDuration returns the duration of the most recent write cycle.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return b.lastDBWriteDuration
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
}

// writeAll drains every queue into the DB once, stamping the current session ID.
func (b *Backend) writeAll() {
	log := b.deps.LogManager.WriteLog
	sessionID := uint(b.sessionID.Load())

	stampNodeStates := func(items []model.NodeState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTraceSamples := func(items []model.TraceSample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTopologyEvents := func(items []model.TopologyEvent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampMobilityResults := func(items []model.MobilityResult) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampPerfSamples := func(items []model.PerfSample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTargetPaths := func(items []model.TargetPath) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}

	start := time.Now()

	// Simulation state
	writeQueue(b.deps.DB, b.queues.NodeStates, "node states", log, stampNodeStates)
	writeQueue(b.deps.DB, b.queues.TraceSamples, "trace samples", log, stampTraceSamples)
	writeQueue(b.deps.DB, b.queues.TargetPaths, "target paths", log, stampTargetPaths)

	// Authoring and analysis
	writeQueue(b.deps.DB, b.queues.TopologyEvents, "topology events", log, stampTopologyEvents)
	writeQueue(b.deps.DB, b.queues.MobilityResults, "mobility results", log, stampMobilityResults)

	// Engine health
	writeQueue(b.deps.DB, b.queues.PerfSamples, "perf samples", log, stampPerfSamples)

	b.lastDBWriteDuration = time.Since(start)
}

// startDBWriters starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriters() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.writeAll()
			time.Sleep(writeInterval)
		}
	}()
}
