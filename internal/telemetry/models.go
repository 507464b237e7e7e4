package telemetry

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// FlightPosition is an airborne flight with a known position.
// Positions produced by Normalize never have OnGround set or a missing lat/lon.
type FlightPosition struct {
	FlightID  string    `json:"flight_id" validate:"required"`
	Callsign  *string   `json:"callsign"`
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Altitude  float64   `json:"altitude"` // metres
	Speed     *float64  `json:"speed,omitempty"`   // m/s
	Heading   *float64  `json:"heading,omitempty"` // degrees from true north
	Timestamp time.Time `json:"timestamp"`

	OriginCountry  string   `json:"origin_country,omitempty"`
	GeoAltitude    *float64 `json:"geo_altitude,omitempty"`
	VerticalRate   *float64 `json:"vertical_rate,omitempty"`
	Squawk         string   `json:"squawk,omitempty"`
	PositionSource *int     `json:"position_source,omitempty"`
	Category       *int     `json:"category,omitempty"`
	LastContact    int64    `json:"last_contact,omitempty"` // unix seconds
}

// CallsignOr returns the callsign, or fallback when it is absent.
func (p FlightPosition) CallsignOr(fallback string) string {
	if p.Callsign == nil || *p.Callsign == "" {
		return fallback
	}
	return *p.Callsign
}

// RawSnapshot is the unmodified JSON body of a /states/all response.
type RawSnapshot json.RawMessage

// BoundingBox restricts a snapshot to a geographic area.
type BoundingBox struct {
	LaMin float64 `json:"lamin" validate:"gte=-90,lte=90,ltefield=LaMax"`
	LoMin float64 `json:"lomin" validate:"gte=-180,lte=180,ltefield=LoMax"`
	LaMax float64 `json:"lamax" validate:"gte=-90,lte=90"`
	LoMax float64 `json:"lomax" validate:"gte=-180,lte=180"`
}

// Filter selects what the upstream snapshot contains.
type Filter struct {
	BBox     *BoundingBox
	Extended bool // request the aircraft category field
}

// IsDefault reports whether f asks for the full, non-extended snapshot,
// the only shape the SnapshotCache stores.
func (f Filter) IsDefault() bool {
	return f.BBox == nil && !f.Extended
}

// Query encodes f as /states/all query parameters.
// The bounding box is sent as all four parameters or not at all.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if f.BBox != nil {
		q.Set("lamin", formatCoord(f.BBox.LaMin))
		q.Set("lomin", formatCoord(f.BBox.LoMin))
		q.Set("lamax", formatCoord(f.BBox.LaMax))
		q.Set("lomax", formatCoord(f.BBox.LoMax))
	}
	if f.Extended {
		q.Set("extended", "1")
	}
	return q
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
