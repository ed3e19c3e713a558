package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"owl-notify/internal/datasource"
	"owl-notify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testNow        = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testThresholds = Thresholds{High: 8, Low: 2, MaxAge: time.Hour}
)

func obsAt(age time.Duration, v *float64) *datasource.Observation {
	return &datasource.Observation{Timestamp: testNow.Add(-age), Value: v}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		obs  *datasource.Observation
		want models.EntityStatus
	}{
		{"no observation", nil, models.StatusNoData},
		{"null value", obsAt(time.Minute, nil), models.StatusNoData},
		{"stale ok value", obsAt(61*time.Minute, float(5)), models.StatusNoData},
		{"stale high value", obsAt(2*time.Hour, float(30)), models.StatusNoData},
		{"exactly max age", obsAt(time.Hour, float(5)), models.StatusOk},
		{"above high", obsAt(time.Minute, float(8.01)), models.StatusHighValue},
		{"equal high", obsAt(time.Minute, float(8)), models.StatusOk},
		{"below low", obsAt(time.Minute, float(1.99)), models.StatusLowValue},
		{"equal low", obsAt(time.Minute, float(2)), models.StatusOk},
		{"in range", obsAt(time.Minute, float(5)), models.StatusOk},
		{"zero below low", obsAt(time.Minute, float(0)), models.StatusLowValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(testNow, tt.obs, testThresholds))
		})
	}
}

type coldChainFixture struct {
	processor    *fakeProcessor
	observations *fakeObservations
	state        *countingStore
	targets      *fakeTargets
	events       *fakeEvents
	evaluator    *ColdChain
}

func newColdChainFixture(entityIDs string) *coldChainFixture {
	f := &coldChainFixture{
		processor: &fakeProcessor{configs: []models.NotificationConfig{{
			ID:                "c1",
			Title:             "Vaccine fridges",
			Kind:              models.KindColdChain,
			Status:            models.ConfigEnabled,
			ConfigurationData: `{"entity_ids":` + entityIDs + `}`,
		}}},
		observations: &fakeObservations{
			obs:  map[string]*datasource.Observation{},
			errs: map[string]error{},
		},
		state: newCountingStore(),
		targets: &fakeTargets{targets: []models.NotificationTarget{
			{Name: "Alice", ToAddress: "alice@example.com", NotificationType: models.NotificationTypeEmail},
		}},
		events: &fakeEvents{},
	}
	f.evaluator = NewColdChain(f.processor, f.observations, f.state, f.targets, f.events, testThresholds, zap.NewNop())
	return f
}

func (f *coldChainFixture) storedState(t *testing.T, entityID string) models.EntityState {
	raw, ok, err := f.state.Get(context.Background(), ColdChainName, models.StateKey(ColdChainName, entityID))
	require.NoError(t, err)
	require.True(t, ok)
	s, err := models.ParseEntityState(raw)
	require.NoError(t, err)
	return s
}

func TestColdChain_FirstHighValueNotifies(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.observations.obs["s1"] = obsAt(5*time.Minute, float(9.5))

	n, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, f.processor.errs[0])

	assert.Equal(t, 1, f.state.sets)
	s := f.storedState(t, "s1")
	assert.Equal(t, models.StatusHighValue, s.Status)
	require.NotNil(t, s.Value)
	assert.Equal(t, 9.5, *s.Value)

	require.Len(t, f.events.reqs, 1)
	req := f.events.reqs[0]
	assert.Equal(t, "c1", f.events.configIDs[0].String)
	assert.Equal(t, "coldchain/title.md", req.Title.Name)
	assert.Equal(t, "coldchain/body.md", req.Body.Name)
	assert.Len(t, req.Recipients, 1)

	data := req.Data.(map[string]interface{})
	assert.Equal(t, "HighValue", data["status"])
	assert.Equal(t, "Ok", data["previous_status"])
	assert.Equal(t, 9.5, data["value"])
	assert.Equal(t, true, data["has_value"])
	assert.Equal(t, "Vaccine fridges", data["config"].(map[string]interface{})["title"])
}

func TestColdChain_FirstOkIsSilent(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.observations.obs["s1"] = obsAt(5*time.Minute, float(5))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 0, f.state.sets)
	assert.Empty(t, f.events.reqs)
}

func TestColdChain_UnchangedStatusDoesNothing(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.observations.obs["s1"] = obsAt(5*time.Minute, float(9.5))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	f.observations.obs["s1"] = obsAt(time.Minute, float(12))
	_, err = f.evaluator.Run(context.Background(), testNow.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, f.state.sets)
	assert.Len(t, f.events.reqs, 1)
}

func TestColdChain_RecoveryNotifies(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.observations.obs["s1"] = obsAt(5*time.Minute, float(1))
	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)

	f.observations.obs["s1"] = obsAt(time.Minute, float(4))
	_, err = f.evaluator.Run(context.Background(), testNow.Add(10*time.Minute))
	require.NoError(t, err)

	require.Len(t, f.events.reqs, 2)
	data := f.events.reqs[1].Data.(map[string]interface{})
	assert.Equal(t, "Ok", data["status"])
	assert.Equal(t, "LowValue", data["previous_status"])
	assert.Equal(t, models.StatusOk, f.storedState(t, "s1").Status)
}

func TestColdChain_NoDataWithoutObservation(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)

	s := f.storedState(t, "s1")
	assert.Equal(t, models.StatusNoData, s.Status)
	assert.Nil(t, s.Value)
	require.Len(t, f.events.reqs, 1)
	data := f.events.reqs[0].Data.(map[string]interface{})
	assert.Equal(t, false, data["has_value"])
	assert.Equal(t, "", data["observed_at"])
}

func TestColdChain_UnparsablePriorStateSkipsEntity(t *testing.T) {
	f := newColdChainFixture(`["s1","s2"]`)
	require.NoError(t, f.state.MemoryStore.Set(context.Background(), ColdChainName, models.StateKey(ColdChainName, "s1"), "{garbage"))
	f.observations.obs["s1"] = obsAt(time.Minute, float(20))
	f.observations.obs["s2"] = obsAt(time.Minute, float(20))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.NoError(t, f.processor.errs[0])

	// s1 untouched, s2 still processed
	raw, _, _ := f.state.Get(context.Background(), ColdChainName, models.StateKey(ColdChainName, "s1"))
	assert.Equal(t, "{garbage", raw)
	assert.Equal(t, 1, f.state.sets)
	require.Len(t, f.events.reqs, 1)
	assert.Equal(t, "s2", f.events.reqs[0].Data.(map[string]interface{})["entity_id"])
}

func TestColdChain_ObservationErrorAbandonsConfig(t *testing.T) {
	f := newColdChainFixture(`["s1","s2"]`)
	f.observations.errs["s1"] = errors.New("connection refused")
	f.observations.obs["s2"] = obsAt(time.Minute, float(20))

	n, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Error(t, f.processor.errs[0])
	assert.Equal(t, []string{"s1"}, f.observations.calls)
	assert.Empty(t, f.events.reqs)
}

func TestColdChain_StateReadErrorAbandonsConfig(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.state.getErr = errors.New("redis timeout")
	f.observations.obs["s1"] = obsAt(time.Minute, float(20))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Error(t, f.processor.errs[0])
	assert.Empty(t, f.events.reqs)
}

func TestColdChain_StateWriteErrorSkipsNotification(t *testing.T) {
	f := newColdChainFixture(`["s1","s2"]`)
	f.state.setErr = errors.New("read-only transaction")
	f.observations.obs["s1"] = obsAt(time.Minute, float(20))
	f.observations.obs["s2"] = obsAt(time.Minute, float(20))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.NoError(t, f.processor.errs[0])
	assert.Equal(t, []string{"s1", "s2"}, f.observations.calls)
	assert.Empty(t, f.events.reqs)
}

func TestColdChain_NotificationFailureKeepsState(t *testing.T) {
	f := newColdChainFixture(`["s1"]`)
	f.events.err = errors.New("template setup failed")
	f.observations.obs["s1"] = obsAt(time.Minute, float(20))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	require.NoError(t, f.processor.errs[0])
	assert.Equal(t, models.StatusHighValue, f.storedState(t, "s1").Status)
}

func TestColdChain_TargetsResolvedOncePerConfig(t *testing.T) {
	f := newColdChainFixture(`["s1","s2"]`)
	f.observations.obs["s1"] = obsAt(time.Minute, float(20))
	f.observations.obs["s2"] = obsAt(time.Minute, float(-5))

	_, err := f.evaluator.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Len(t, f.targets.params, 1)
	assert.Len(t, f.events.reqs, 2)
}
