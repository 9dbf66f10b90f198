package service

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeFamily(t *testing.T, m *MetricsService, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %s not registered", name)
	return nil
}

func TestMetricsServiceRoomOccupancyKeyedByID(t *testing.T) {
	m := NewMetricsService()

	// Occupancy observations before and after a room-number change land on
	// the same series because the label is the immutable room ID.
	m.SetRoomOccupancy("room-1", 1, 2)
	m.SetRoomOccupancy("room-1", 2, 2)

	occupancy := gaugeFamily(t, m, "room_occupied")
	require.Len(t, occupancy.GetMetric(), 1)
	metric := occupancy.GetMetric()[0]
	require.Len(t, metric.GetLabel(), 1)
	assert.Equal(t, "room_id", metric.GetLabel()[0].GetName())
	assert.Equal(t, "room-1", metric.GetLabel()[0].GetValue())
	assert.Equal(t, 2.0, metric.GetGauge().GetValue())

	capacity := gaugeFamily(t, m, "room_capacity")
	require.Len(t, capacity.GetMetric(), 1)
	assert.Equal(t, 2.0, capacity.GetMetric()[0].GetGauge().GetValue())
}

func TestMetricsServiceAssignmentCounter(t *testing.T) {
	m := NewMetricsService()

	m.RecordAssignment("assign", "ok")
	m.RecordAssignment("assign", "ok")
	m.RecordAssignment("assign", "rejected")

	family := gaugeFamily(t, m, "room_assignments_total")
	require.Len(t, family.GetMetric(), 2)
	var ok, rejected float64
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" && label.GetValue() == "ok" {
				ok = metric.GetCounter().GetValue()
			}
			if label.GetName() == "outcome" && label.GetValue() == "rejected" {
				rejected = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, ok)
	assert.Equal(t, 1.0, rejected)
}
