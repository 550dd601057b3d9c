package delivery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDelivery(t *testing.T) *Delivery {
	t.Helper()
	d, err := New(uuid.New(), uuid.New())
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := newTestDelivery(t)
	assert.Equal(t, StatusAssigned, d.Status)
	assert.Empty(t, d.Route)
	assert.WithinDuration(t, time.Now().Add(DefaultETA), d.EstimatedArrival, 2*time.Second)

	_, err := New(uuid.Nil, uuid.New())
	assert.Error(t, err)
}

func TestStatusProgress(t *testing.T) {
	tests := []struct {
		status   Status
		progress int
	}{
		{StatusAssigned, 0},
		{StatusAccepted, 20},
		{StatusPickedUp, 40},
		{StatusInTransit, 70},
		{StatusDelivered, 100},
		{StatusCancelled, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.progress, tt.status.Progress())
		})
	}
}

func TestDeliveryLifecycle(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		d := newTestDelivery(t)
		require.NoError(t, d.Accept())
		require.NoError(t, d.MarkPickedUp())
		require.NoError(t, d.MarkInTransit())
		require.NoError(t, d.MarkDelivered(Proof{Image: "door.jpg"}))

		assert.Equal(t, StatusDelivered, d.Status)
		assert.NotNil(t, d.ActualArrival)
		require.NotNil(t, d.DeliveryProof)
		assert.False(t, d.DeliveryProof.Timestamp.IsZero())
	})

	t.Run("cannot pick up before accepting", func(t *testing.T) {
		d := newTestDelivery(t)
		assert.Error(t, d.MarkPickedUp())
	})

	t.Run("delivered requires proof image", func(t *testing.T) {
		d := newTestDelivery(t)
		require.NoError(t, d.Accept())
		require.NoError(t, d.MarkPickedUp())
		assert.Error(t, d.MarkDelivered(Proof{}))
		assert.Equal(t, StatusPickedUp, d.Status)
	})

	t.Run("cancel is idempotent and terminal", func(t *testing.T) {
		d := newTestDelivery(t)
		require.NoError(t, d.Cancel())
		require.NoError(t, d.Cancel())
		assert.Error(t, d.Accept())
	})
}

func TestUpdateLocation(t *testing.T) {
	d := newTestDelivery(t)
	require.NoError(t, d.Accept())

	require.NoError(t, d.UpdateLocation(12.97, 77.59, "MG Road"))
	require.NoError(t, d.UpdateLocation(12.98, 77.60, ""))

	assert.Len(t, d.Route, 2)
	require.NotNil(t, d.CurrentLocation)
	assert.Equal(t, 12.98, d.CurrentLocation.Lat)

	t.Run("rejects out-of-range coordinates", func(t *testing.T) {
		assert.Error(t, d.UpdateLocation(91, 0, ""))
		assert.Error(t, d.UpdateLocation(0, -181, ""))
		assert.Len(t, d.Route, 2)
	})

	t.Run("rejects updates after delivery", func(t *testing.T) {
		require.NoError(t, d.MarkPickedUp())
		require.NoError(t, d.MarkDelivered(Proof{Image: "door.jpg"}))
		assert.Error(t, d.UpdateLocation(12.99, 77.61, ""))
	})
}

func TestTimeRemaining(t *testing.T) {
	d := newTestDelivery(t)
	d.EstimatedArrival = time.Now().Add(10 * time.Minute)

	t.Run("minutes until arrival", func(t *testing.T) {
		remaining := d.TimeRemaining(time.Now())
		require.NotNil(t, remaining)
		assert.InDelta(t, 10, *remaining, 1)
	})

	t.Run("clamped at zero when overdue", func(t *testing.T) {
		remaining := d.TimeRemaining(d.EstimatedArrival.Add(time.Hour))
		require.NotNil(t, remaining)
		assert.Equal(t, 0, *remaining)
	})

	t.Run("nil once finished", func(t *testing.T) {
		require.NoError(t, d.Cancel())
		assert.Nil(t, d.TimeRemaining(time.Now()))
	})
}

func TestRateByCustomer(t *testing.T) {
	d := newTestDelivery(t)
	assert.Error(t, d.RateByCustomer(5, "great"))

	require.NoError(t, d.Accept())
	require.NoError(t, d.MarkPickedUp())
	require.NoError(t, d.MarkDelivered(Proof{Image: "door.jpg"}))

	assert.Error(t, d.RateByCustomer(0, ""))
	assert.Error(t, d.RateByCustomer(6, ""))
	require.NoError(t, d.RateByCustomer(5, "fast and friendly"))
	require.NotNil(t, d.CustomerRating)
	assert.Equal(t, 5, d.CustomerRating.Score)
}
