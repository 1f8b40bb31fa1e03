package traffic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/console/internal/traffic"
)

func TestParseSignalStatus(t *testing.T) {
	st, err := traffic.ParseSignalStatus(" Green ")
	require.NoError(t, err)
	assert.Equal(t, traffic.SignalGreen, st)

	_, err = traffic.ParseSignalStatus("blue")
	assert.ErrorIs(t, err, traffic.ErrInvalidStatus)
}

func TestViolationType_Style(t *testing.T) {
	tests := []struct {
		typ   traffic.ViolationType
		label string
		color string
	}{
		{traffic.ViolationRedLight, "Red Light Violation", "destructive"},
		{traffic.ViolationSpeeding, "Speeding", "yellow"},
		{traffic.ViolationNoHelmet, "No Helmet", "orange"},
		{traffic.ViolationExcessPassengers, "Excess Passengers", "purple"},
		{traffic.ViolationOther, "Other Violation", traffic.DefaultViolationColor},
		{traffic.ViolationType("wrong_way"), "wrong_way", traffic.DefaultViolationColor},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			s := tt.typ.Style()
			assert.Equal(t, tt.label, s.Label)
			assert.Equal(t, tt.color, s.Color)
		})
	}
	assert.False(t, traffic.ViolationType("wrong_way").Known())
}

func TestViolation_Matches(t *testing.T) {
	v := traffic.Violation{VehicleNumber: "ABC-1234", Type: traffic.ViolationRedLight}

	assert.True(t, v.Matches(""))
	assert.True(t, v.Matches("abc"))
	assert.True(t, v.Matches("red_light"))
	assert.True(t, v.Matches("Red Light"))
	assert.False(t, v.Matches("speeding"))
}

func TestDirectory(t *testing.T) {
	d := traffic.NewDirectory(map[string]string{"int-002": "Park Avenue", "int-001": "Main Street"})

	assert.Equal(t, "Main Street", d.Name("int-001"))
	assert.Equal(t, traffic.UnknownIntersectionName, d.Name("int-999"))
	assert.Equal(t, []string{"int-001", "int-002"}, d.IDs())
	assert.Equal(t, []string{"Main Street", "Park Avenue"}, d.Labels())

	defaults := traffic.NewDirectory(nil)
	assert.Equal(t, "Main St & 5th Ave", defaults.Name("int-001"))
	assert.Len(t, defaults.IDs(), 4)
}

func TestBackendError(t *testing.T) {
	assert.Equal(t, "set signal: rejected: nope", traffic.RejectedError("set signal", "nope").Error())
	assert.Equal(t, "fetch telemetry: transport: status 502 Bad Gateway", traffic.TransportError("fetch telemetry", 502, nil).Error())
}
