package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mr1hm/go-shelter-coverage/internal/analysis"
	"github.com/mr1hm/go-shelter-coverage/internal/config"
	"github.com/mr1hm/go-shelter-coverage/internal/metrics"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
	"github.com/mr1hm/go-shelter-coverage/internal/repository"
	"github.com/mr1hm/go-shelter-coverage/internal/worker"
)

const (
	datasetAreas    = "population"
	datasetShelters = "shelters"
)

// DatasetSink receives every snapshot the manager builds.
type DatasetSink interface {
	SetDataset(ds *analysis.Dataset)
}

type Manager struct {
	cfg    *config.Config
	repo   repository.DatasetRepository
	sink   DatasetSink
	client *http.Client
	wg     sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.DatasetRepository, sink DatasetSink) *Manager {
	return &Manager{
		cfg:  cfg,
		repo: repo,
		sink: sink,
		client: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

// Start performs the initial load and, if a refresh interval is configured,
// keeps reloading in the background until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Load(ctx); err != nil {
		return err
	}

	if interval := m.cfg.Sources.RefreshInterval; interval > 0 {
		m.wg.Add(1)
		go m.runRefresher(ctx, interval)
	}
	return nil
}

func (m *Manager) runRefresher(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting dataset refresher", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dataset refresher shutting down")
			return
		case <-ticker.C:
			if err := m.Load(ctx); err != nil {
				slog.Error("dataset refresh failed", "error", err)
			}
		}
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.client.CloseIdleConnections()
	slog.Info("ingestion manager stopped")
}

// Load fetches both sources, persists them and hands a fresh snapshot to the
// sink. A source that fails keeps whatever was stored for it before; the
// error is only returned when the snapshot itself cannot be built.
func (m *Manager) Load(ctx context.Context) error {
	start := time.Now()

	if src := m.cfg.Sources.PopulationSource; src != "" {
		if err := m.loadAreas(ctx, src, start); err != nil {
			metrics.IngestionErrors.WithLabelValues(datasetAreas).Inc()
			slog.Error("dataset load failed", "dataset", datasetAreas, "source", src, "error", err)
		}
	}

	if src := m.cfg.Sources.ShelterSource; src != "" {
		if err := m.loadShelters(ctx, src, start); err != nil {
			metrics.IngestionErrors.WithLabelValues(datasetShelters).Inc()
			slog.Error("dataset load failed", "dataset", datasetShelters, "source", src, "error", err)
		}
	}

	ds, err := Snapshot(ctx, m.repo)
	if err != nil {
		return err
	}
	if m.sink != nil {
		m.sink.SetDataset(ds)
	}

	slog.Debug("load complete", "duration", time.Since(start))
	return nil
}

func (m *Manager) loadAreas(ctx context.Context, source string, start time.Time) error {
	data, err := m.fetch(ctx, source)
	if err != nil {
		return err
	}

	areas, err := decodeAreas(data, m.cfg.Sources.PopulationField, start)
	if err != nil {
		return err
	}

	store := func(ctx context.Context, job worker.Job) error {
		return m.repo.UpsertArea(ctx, job.(*models.PopulationArea))
	}
	if err := m.persist(ctx, datasetAreas, toJobs(areas), store); err != nil {
		return err
	}

	pruned, err := m.repo.PruneAreas(ctx, start)
	if err != nil {
		return err
	}

	slog.Info("dataset loaded", "dataset", datasetAreas, "source", source, "records", len(areas), "pruned", pruned)
	return nil
}

func (m *Manager) loadShelters(ctx context.Context, source string, start time.Time) error {
	data, err := m.fetch(ctx, source)
	if err != nil {
		return err
	}

	shelters, err := decodeShelters(data, m.cfg.Sources.CapacityField, m.cfg.Sources.AddressField, start)
	if err != nil {
		return err
	}

	store := func(ctx context.Context, job worker.Job) error {
		return m.repo.UpsertShelter(ctx, job.(*models.ShelterSite))
	}
	if err := m.persist(ctx, datasetShelters, toJobs(shelters), store); err != nil {
		return err
	}

	pruned, err := m.repo.PruneShelters(ctx, start)
	if err != nil {
		return err
	}

	slog.Info("dataset loaded", "dataset", datasetShelters, "source", source, "records", len(shelters), "pruned", pruned)
	return nil
}

// persist writes jobs through a short-lived worker pool. Any record that was
// not stored makes the whole load fail so stale rows are not pruned.
func (m *Manager) persist(ctx context.Context, dataset string, jobs []worker.Job, store worker.ProcessFunc) error {
	pool := worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, store)
	pool.Start(ctx)

	for _, job := range jobs {
		if err := pool.Submit(ctx, job); err != nil {
			pool.Stop()
			return fmt.Errorf("error queueing %s records: %w", dataset, err)
		}
	}
	pool.Stop()

	metrics.RecordsIngested.WithLabelValues(dataset).Add(float64(pool.Processed()))

	if stored := pool.Processed(); stored != int64(len(jobs)) {
		return fmt.Errorf("stored %d of %d %s records (%d failed)", stored, len(jobs), dataset, pool.Failed())
	}
	return nil
}

// Snapshot builds an immutable dataset from everything currently stored.
func Snapshot(ctx context.Context, repo repository.DatasetRepository) (*analysis.Dataset, error) {
	areas, err := repo.ListAreas(ctx, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("error building snapshot: %w", err)
	}

	shelters, err := repo.ListShelters(ctx, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("error building snapshot: %w", err)
	}

	return &analysis.Dataset{
		Areas:    areas,
		Shelters: shelters,
		LoadedAt: time.Now(),
	}, nil
}

func toJobs[T any](items []T) []worker.Job {
	jobs := make([]worker.Job, len(items))
	for i, item := range items {
		jobs[i] = item
	}
	return jobs
}
