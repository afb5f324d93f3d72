package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBoolGauge(t *testing.T) {
	assert.Equal(t, 1.0, BoolGauge(true))
	assert.Equal(t, 0.0, BoolGauge(false))
}

func TestCollectorsRegistered(t *testing.T) {
	before := testutil.ToFloat64(MealEvents.WithLabelValues("mealStart"))
	MealEvents.WithLabelValues("mealStart").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MealEvents.WithLabelValues("mealStart")))

	SensorReading.Set(2048)
	assert.Equal(t, 2048.0, testutil.ToFloat64(SensorReading))
}
