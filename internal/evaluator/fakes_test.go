package evaluator

import (
	"context"
	"time"

	"owl-notify/internal/datasource"
	"owl-notify/internal/models"
	"owl-notify/internal/notification"
	"owl-notify/internal/resolver"
	"owl-notify/internal/store"

	"github.com/guregu/null/v5"
)

// fakeProcessor decodes and hands every config of the kind to fn, recording fn errors
type fakeProcessor struct {
	configs []models.NotificationConfig
	errs    []error
}

func (f *fakeProcessor) Process(ctx context.Context, kind models.ConfigKind, now time.Time, fn resolver.ProcessFunc) (int, error) {
	n := 0
	for _, cfg := range f.configs {
		if cfg.Kind != kind {
			continue
		}
		kindCfg, err := models.DecodeKindConfig(cfg.Kind, cfg.ConfigurationData)
		if err != nil {
			continue
		}
		n++
		f.errs = append(f.errs, fn(ctx, cfg, kindCfg))
	}
	return n, nil
}

type fakeObservations struct {
	obs   map[string]*datasource.Observation
	errs  map[string]error
	calls []string
}

func (f *fakeObservations) Latest(ctx context.Context, entityID string) (*datasource.Observation, error) {
	f.calls = append(f.calls, entityID)
	if err := f.errs[entityID]; err != nil {
		return nil, err
	}
	return f.obs[entityID], nil
}

// countingStore MemoryStore that counts writes and can fail
type countingStore struct {
	*store.MemoryStore
	sets   int
	getErr error
	setErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.MemoryStore.Get(ctx, namespace, key)
}

func (s *countingStore) Set(ctx context.Context, namespace, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	return s.MemoryStore.Set(ctx, namespace, key, value)
}

type fakeTargets struct {
	targets []models.NotificationTarget
	err     error
	params  []map[string]interface{}
}

func (f *fakeTargets) Targets(ctx context.Context, cfg models.NotificationConfig, params map[string]interface{}) ([]models.NotificationTarget, error) {
	f.params = append(f.params, params)
	return f.targets, f.err
}

type fakeEvents struct {
	reqs      []notification.NotificationContext
	configIDs []null.String
	err       error
}

func (f *fakeEvents) CreateEvents(ctx context.Context, configID null.String, req notification.NotificationContext) (int, error) {
	f.reqs = append(f.reqs, req)
	f.configIDs = append(f.configIDs, configID)
	if f.err != nil {
		return 1, f.err
	}
	return len(req.Recipients), nil
}

func float(v float64) *float64 { return &v }
