package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(t *testing.T, states ...[]interface{}) RawSnapshot {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"time": 1000, "states": states})
	require.NoError(t, err)
	return RawSnapshot(b)
}

func airborneVector() []interface{} {
	return []interface{}{
		"abc123",   // 0  icao24
		"UAL123  ", // 1  callsign
		"US",       // 2  origin_country
		1000,       // 3  time_position
		1000,       // 4  last_contact
		10.0,       // 5  longitude
		45.0,       // 6  latitude
		10000.0,    // 7  baro_altitude
		false,      // 8  on_ground
		230.0,      // 9  velocity
		90.0,       // 10 true_track
		0.0,        // 11 vertical_rate
		nil,        // 12 sensors
		10200.0,    // 13 geo_altitude
		"1200",     // 14 squawk
		false,      // 15 spi
		0,          // 16 position_source
	}
}

func TestNormalizeMapsStateVector(t *testing.T) {
	res, err := Normalize(snapshotOf(t, airborneVector()))
	require.NoError(t, err)
	require.Len(t, res.Flights, 1)

	f := res.Flights[0]
	assert.Equal(t, "abc123", f.FlightID)
	require.NotNil(t, f.Callsign)
	assert.Equal(t, "UAL123", *f.Callsign)
	assert.Equal(t, 45.0, f.Latitude)
	assert.Equal(t, 10.0, f.Longitude)
	assert.Equal(t, 10000.0, f.Altitude)
	require.NotNil(t, f.Speed)
	assert.Equal(t, 230.0, *f.Speed)
	require.NotNil(t, f.Heading)
	assert.Equal(t, 90.0, *f.Heading)
	assert.Equal(t, time.Unix(1000, 0).UTC(), f.Timestamp)
	assert.Equal(t, "US", f.OriginCountry)
	assert.Equal(t, "1200", f.Squawk)
	require.NotNil(t, f.GeoAltitude)
	assert.Equal(t, 10200.0, *f.GeoAltitude)
	require.NotNil(t, f.PositionSource)
	assert.Equal(t, 0, *f.PositionSource)
	assert.Nil(t, f.Category)
}

func TestNormalizeFiltersOnGroundAndUnpositioned(t *testing.T) {
	onGround := airborneVector()
	onGround[0] = "ground1"
	onGround[8] = true

	noLat := airborneVector()
	noLat[0] = "nolat"
	noLat[6] = nil

	noLon := airborneVector()
	noLon[0] = "nolon"
	noLon[5] = nil

	keep := airborneVector()
	keep[0] = "keep2"

	res, err := Normalize(snapshotOf(t, airborneVector(), onGround, noLat, noLon, keep))
	require.NoError(t, err)

	require.Len(t, res.Flights, 2)
	assert.Equal(t, "abc123", res.Flights[0].FlightID)
	assert.Equal(t, "keep2", res.Flights[1].FlightID)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 1, res.OnGround)
	assert.Equal(t, 2, res.NoPosition)
	assert.Zero(t, res.Malformed)
}

func TestNormalizeSkipsMalformedVectors(t *testing.T) {
	short := airborneVector()[:16]

	wrongType := airborneVector()
	wrongType[0] = "wrongtype"
	wrongType[6] = "45.0"

	noID := airborneVector()
	noID[0] = ""

	raw := RawSnapshot(`{"time":1000,"states":[` +
		mustJSON(t, short) + `,` +
		mustJSON(t, wrongType) + `,` +
		`"not-an-array",` +
		mustJSON(t, noID) + `,` +
		mustJSON(t, airborneVector()) + `]}`)

	res, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, res.Flights, 1)
	assert.Equal(t, "abc123", res.Flights[0].FlightID)
	assert.Equal(t, 4, res.Malformed)
	assert.Equal(t, 5, res.Total)
}

func TestNormalizeEmptyCallsignIsAbsent(t *testing.T) {
	blank := airborneVector()
	blank[1] = "        "
	null := airborneVector()
	null[1] = nil

	res, err := Normalize(snapshotOf(t, blank, null))
	require.NoError(t, err)
	require.Len(t, res.Flights, 2)
	assert.Nil(t, res.Flights[0].Callsign)
	assert.Nil(t, res.Flights[1].Callsign)
}

func TestNormalizeFallbacks(t *testing.T) {
	v := airborneVector()
	v[3] = nil       // time_position
	v[4] = 990       // last_contact
	v[7] = nil       // baro_altitude
	v[9] = nil       // velocity
	v[10] = nil      // true_track
	v = append(v, 3) // category

	none := airborneVector()
	none[3] = nil
	none[4] = nil
	none[7] = nil
	none[13] = nil

	res, err := Normalize(snapshotOf(t, v, none))
	require.NoError(t, err)
	require.Len(t, res.Flights, 2)

	f := res.Flights[0]
	assert.Equal(t, 10200.0, f.Altitude)
	assert.Equal(t, time.Unix(990, 0).UTC(), f.Timestamp)
	assert.Nil(t, f.Speed)
	assert.Nil(t, f.Heading)
	require.NotNil(t, f.Category)
	assert.Equal(t, 3, *f.Category)

	g := res.Flights[1]
	assert.Zero(t, g.Altitude)
	assert.Equal(t, time.Unix(1000, 0).UTC(), g.Timestamp)
}

func TestNormalizeNullStates(t *testing.T) {
	res, err := Normalize(RawSnapshot(`{"time":1000,"states":null}`))
	require.NoError(t, err)
	assert.Empty(t, res.Flights)
	assert.Zero(t, res.Total)
}

func TestNormalizeRejectsBadEnvelope(t *testing.T) {
	_, err := Normalize(RawSnapshot(`<html>`))
	assert.Error(t, err)
}

func TestNormalizeIsIdempotentOnFilteredOutput(t *testing.T) {
	second := airborneVector()
	second[0] = "def456"
	second[1] = "DLH9"
	second[5] = -3.5
	second[6] = 51.2
	second[11] = -4.5

	first, err := Normalize(snapshotOf(t, airborneVector(), second))
	require.NoError(t, err)
	require.Len(t, first.Flights, 2)

	again, err := Normalize(snapshotOf(t, toVectors(first.Flights)...))
	require.NoError(t, err)
	assert.Equal(t, first.Flights, again.Flights)
	assert.Zero(t, again.Malformed)
}

// toVectors re-encodes positions in state-vector layout.
func toVectors(flights []FlightPosition) [][]interface{} {
	out := make([][]interface{}, 0, len(flights))
	for _, f := range flights {
		v := make([]interface{}, minStateFields)
		v[idxICAO24] = f.FlightID
		if f.Callsign != nil {
			v[idxCallsign] = *f.Callsign
		}
		v[idxOriginCountry] = f.OriginCountry
		v[idxTimePosition] = f.Timestamp.Unix()
		v[idxLastContact] = f.LastContact
		v[idxLongitude] = f.Longitude
		v[idxLatitude] = f.Latitude
		v[idxBaroAltitude] = f.Altitude
		v[idxOnGround] = false
		v[idxVelocity] = f.Speed
		v[idxTrueTrack] = f.Heading
		v[idxVerticalRate] = f.VerticalRate
		v[idxGeoAltitude] = f.GeoAltitude
		v[idxSquawk] = f.Squawk
		v[idxSPI] = false
		v[idxPositionSource] = f.PositionSource
		if f.Category != nil {
			v = append(v, *f.Category)
		}
		out = append(out, v)
	}
	return out
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
