package analysis

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/metrics"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

// Dataset is an immutable snapshot of both inputs. Loaders build a new one
// instead of mutating the current one.
type Dataset struct {
	Areas    []models.PopulationArea
	Shelters []models.ShelterSite
	LoadedAt time.Time
}

// DrawState is the state of one drawing session: the active shape, if any,
// and the result computed for it.
type DrawState struct {
	Shape     geo.Shape
	Result    models.AnalysisResult
	UpdatedAt time.Time
}

func (s DrawState) Active() bool {
	return s.Shape != nil
}

type EventKind string

const (
	EventResult  EventKind = "result"
	EventCleared EventKind = "cleared"
)

// Event tells display collaborators about a new result or a cleared shape.
type Event struct {
	Session string                `json:"session"`
	Kind    EventKind             `json:"kind"`
	Result  models.AnalysisResult `json:"result"`
	At      time.Time             `json:"at"`
}

type Publisher interface {
	Publish(ev Event)
}

// Service owns the current dataset snapshot and the draw state of every
// session. Each state is replaced wholesale, never merged.
type Service struct {
	engine    Engine
	publisher Publisher
	dataset   atomic.Pointer[Dataset]

	mu          sync.Mutex
	sessions    map[string]DrawState
	generations map[string]uint64 // bumped by every Draw and Clear
}

func NewService(engine Engine, publisher Publisher) *Service {
	s := &Service{
		engine:      engine,
		publisher:   publisher,
		sessions:    make(map[string]DrawState),
		generations: make(map[string]uint64),
	}
	s.dataset.Store(&Dataset{})
	return s
}

func (s *Service) Engine() Engine {
	return s.engine
}

// SetDataset swaps in a new snapshot. Runs already in progress finish on the
// snapshot they started with.
func (s *Service) SetDataset(ds *Dataset) {
	if ds == nil {
		ds = &Dataset{}
	}
	s.dataset.Store(ds)
	slog.Info("dataset updated", "areas", len(ds.Areas), "shelters", len(ds.Shelters))
}

// Dataset returns the current snapshot; never nil.
func (s *Service) Dataset() *Dataset {
	return s.dataset.Load()
}

// Analyze runs a full pass for shape without touching any session.
func (s *Service) Analyze(shape geo.Shape) models.AnalysisResult {
	ds := s.Dataset()
	start := time.Now()

	res := s.engine.Aggregate(ds.Areas, ds.Shelters, shape)

	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	metrics.AnalysesTotal.WithLabelValues(string(shape.Kind())).Inc()
	metrics.AreaErrors.Add(float64(res.AreasWithErrors))

	slog.Debug("analysis complete",
		"shape", shape.Kind(),
		"areas_intersected", res.AreasIntersected,
		"bunkers_inside", res.BunkersInside,
		"duration", time.Since(start))
	return res
}

// Draw handles a created or edited shape: the session's previous shape is
// discarded and the result recomputed from scratch. If another Draw or a
// Clear for the same session starts while this pass runs, this result is
// dropped and the newer state is returned instead.
func (s *Service) Draw(session string, shape geo.Shape) DrawState {
	gen := s.nextGeneration(session)

	state := DrawState{
		Shape:  shape,
		Result: s.Analyze(shape),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[session] != gen {
		slog.Debug("discarding superseded draw", "session", session)
		return s.sessions[session]
	}

	state.UpdatedAt = time.Now()
	s.sessions[session] = state
	s.publish(Event{Session: session, Kind: EventResult, Result: state.Result, At: state.UpdatedAt})

	return state
}

// Clear handles a deleted shape and returns the cleared state. Draws still
// in flight for the session are superseded.
func (s *Service) Clear(session string) DrawState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[session]++
	delete(s.sessions, session)
	metrics.SessionsCleared.Inc()

	cleared := DrawState{UpdatedAt: time.Now()}
	s.publish(Event{Session: session, Kind: EventCleared, At: cleared.UpdatedAt})
	return cleared
}

func (s *Service) nextGeneration(session string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[session]++
	return s.generations[session]
}

// State returns the session's draw state; the zero state when none is active.
func (s *Service) State(session string) DrawState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[session]
}

func (s *Service) publish(ev Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
