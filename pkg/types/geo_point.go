package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// LocationSample is a courier-reported position.
type LocationSample struct {
	Lat      float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lng      float64   `json:"lng" validate:"gte=-180,lte=180"`
	Accuracy *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	At       time.Time `json:"at,omitempty"`
}

// Point drops accuracy and timestamp.
func (l LocationSample) Point() GeoPoint {
	return GeoPoint{Lat: l.Lat, Lng: l.Lng}
}

// Value lets map-based updates write the sample as json.
func (l LocationSample) Value() (driver.Value, error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
