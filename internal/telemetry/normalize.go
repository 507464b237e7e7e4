package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Positions within an OpenSky state vector.
const (
	idxICAO24 = iota
	idxCallsign
	idxOriginCountry
	idxTimePosition
	idxLastContact
	idxLongitude
	idxLatitude
	idxBaroAltitude
	idxOnGround
	idxVelocity
	idxTrueTrack
	idxVerticalRate
	idxSensors
	idxGeoAltitude
	idxSquawk
	idxSPI
	idxPositionSource
	idxCategory // only present with extended=1

	minStateFields = idxCategory
)

// stateEnvelope is the /states/all response. Vectors stay raw so one bad
// record cannot fail the whole decode.
type stateEnvelope struct {
	Time   int64             `json:"time"`
	States []json.RawMessage `json:"states"`
}

// NormalizeResult is the outcome of one normalization pass.
type NormalizeResult struct {
	Flights    []FlightPosition
	Total      int // vectors in the snapshot
	OnGround   int
	NoPosition int
	Malformed  int
}

// Normalize converts a raw snapshot into airborne, positioned flights in input
// order. Only an undecodable envelope is an error; individual malformed
// vectors are counted and skipped.
func Normalize(raw RawSnapshot) (NormalizeResult, error) {
	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return NormalizeResult{}, fmt.Errorf("decoding state envelope: %w", err)
	}

	res := NormalizeResult{
		Flights: make([]FlightPosition, 0, len(env.States)),
		Total:   len(env.States),
	}
	for _, rv := range env.States {
		sv, ok := decodeStateVector(rv)
		if !ok {
			res.Malformed++
			continue
		}
		switch {
		case sv.onGround:
			res.OnGround++
			continue
		case sv.latitude == nil || sv.longitude == nil:
			res.NoPosition++
			continue
		}
		res.Flights = append(res.Flights, sv.position(env.Time))
	}
	return res, nil
}

// stateVector is a decoded RawStateVector before filtering.
type stateVector struct {
	icao24         string
	callsign       string
	originCountry  string
	timePosition   *float64
	lastContact    *float64
	longitude      *float64
	latitude       *float64
	baroAltitude   *float64
	onGround       bool
	velocity       *float64
	trueTrack      *float64
	verticalRate   *float64
	geoAltitude    *float64
	squawk         string
	positionSource *float64
	category       *float64
}

// decodeStateVector is strict about arity and JSON types: a vector shorter
// than 17 fields, a field of the wrong type or an empty icao24 is malformed.
func decodeStateVector(raw json.RawMessage) (stateVector, bool) {
	var fields []any
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < minStateFields {
		return stateVector{}, false
	}

	r := vectorReader{fields: fields}
	sv := stateVector{
		icao24:         r.str(idxICAO24),
		callsign:       r.str(idxCallsign),
		originCountry:  r.str(idxOriginCountry),
		timePosition:   r.num(idxTimePosition),
		lastContact:    r.num(idxLastContact),
		longitude:      r.num(idxLongitude),
		latitude:       r.num(idxLatitude),
		baroAltitude:   r.num(idxBaroAltitude),
		onGround:       r.boolean(idxOnGround),
		velocity:       r.num(idxVelocity),
		trueTrack:      r.num(idxTrueTrack),
		verticalRate:   r.num(idxVerticalRate),
		geoAltitude:    r.num(idxGeoAltitude),
		squawk:         r.str(idxSquawk),
		positionSource: r.num(idxPositionSource),
		category:       r.num(idxCategory),
	}
	if r.bad || sv.icao24 == "" {
		return stateVector{}, false
	}
	return sv, true
}

func (sv stateVector) position(snapshotTime int64) FlightPosition {
	p := FlightPosition{
		FlightID:      sv.icao24,
		Latitude:      *sv.latitude,
		Longitude:     *sv.longitude,
		Speed:         sv.velocity,
		Heading:       sv.trueTrack,
		OriginCountry: sv.originCountry,
		GeoAltitude:   sv.geoAltitude,
		VerticalRate:  sv.verticalRate,
		Squawk:        sv.squawk,
	}

	if cs := strings.TrimSpace(sv.callsign); cs != "" {
		p.Callsign = &cs
	}

	switch {
	case sv.baroAltitude != nil:
		p.Altitude = *sv.baroAltitude
	case sv.geoAltitude != nil:
		p.Altitude = *sv.geoAltitude
	}

	if sv.lastContact != nil {
		p.LastContact = int64(*sv.lastContact)
	}
	switch {
	case sv.timePosition != nil:
		p.Timestamp = time.Unix(int64(*sv.timePosition), 0).UTC()
	case sv.lastContact != nil:
		p.Timestamp = time.Unix(p.LastContact, 0).UTC()
	case snapshotTime > 0:
		p.Timestamp = time.Unix(snapshotTime, 0).UTC()
	}

	if sv.positionSource != nil {
		v := int(*sv.positionSource)
		p.PositionSource = &v
	}
	if sv.category != nil {
		v := int(*sv.category)
		p.Category = &v
	}
	return p
}

// vectorReader reads typed fields by position. JSON null and missing trailing
// fields read as absent; any other type mismatch marks the vector bad.
type vectorReader struct {
	fields []any
	bad    bool
}

func (r *vectorReader) at(i int) any {
	if i >= len(r.fields) {
		return nil
	}
	return r.fields[i]
}

func (r *vectorReader) str(i int) string {
	switch v := r.at(i).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		r.bad = true
		return ""
	}
}

func (r *vectorReader) num(i int) *float64 {
	switch v := r.at(i).(type) {
	case nil:
		return nil
	case float64:
		return &v
	default:
		r.bad = true
		return nil
	}
}

func (r *vectorReader) boolean(i int) bool {
	switch v := r.at(i).(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		r.bad = true
		return false
	}
}
