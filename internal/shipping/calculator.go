package shipping

import (
	"math"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// EarthRadiusKm is the sphere radius used by Haversine.
const EarthRadiusKm = 6371.0

// Request describes one seller group's delivery.
type Request struct {
	Origin      types.Address
	Destination types.Address
	Method      enums.ShippingMethod
	// RushDistanceKm overrides the computed distance for rush pricing.
	RushDistanceKm *float64
}

// Quote is the priced result for one seller group.
type Quote struct {
	Fee                  int64
	Scope                enums.ShippingScope
	DistanceKm           *float64
	UsedFallbackDistance bool
}

// Calculator prices deliveries from fixed tiers and rush parameters.
type Calculator struct {
	cfg config.ShippingConfig
}

func NewCalculator(cfg config.ShippingConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Quote prices a delivery. Unknown methods fall back to standard pricing.
func (c *Calculator) Quote(req Request) Quote {
	distance := distanceBetween(req.Origin.Location, req.Destination.Location)
	if req.Method == enums.ShippingMethodRush {
		return c.rushQuote(distance, req.RushDistanceKm)
	}

	scope := c.regionScope(req.Origin, req.Destination, distance)
	express := req.Method == enums.ShippingMethodExpress
	var fee int64
	switch {
	case scope == enums.ShippingScopeInRegion && express:
		fee = c.cfg.ExpressInRegion
	case scope == enums.ShippingScopeInRegion:
		fee = c.cfg.StandardInRegion
	case express:
		fee = c.cfg.ExpressOutRegion
	default:
		fee = c.cfg.StandardOutRegion
	}
	return Quote{Fee: fee, Scope: scope, DistanceKm: roundKm(distance)}
}

// regionScope prefers great-circle distance and falls back to comparing
// normalized province names. With neither available the scope is unknown
// and the caller is charged the out-of-region tier.
func (c *Calculator) regionScope(origin, destination types.Address, distance *float64) enums.ShippingScope {
	if distance != nil {
		if *distance <= c.cfg.RegionThresholdKm {
			return enums.ShippingScopeInRegion
		}
		return enums.ShippingScopeOutOfRegion
	}
	from, to := origin.NormalizedProvince(), destination.NormalizedProvince()
	if from == "" || to == "" {
		return enums.ShippingScopeUnknown
	}
	if from == to {
		return enums.ShippingScopeInRegion
	}
	return enums.ShippingScopeOutOfRegion
}

func (c *Calculator) rushQuote(distance, override *float64) Quote {
	var km float64
	usedFallback := false
	switch {
	case override != nil && *override > 0:
		km = *override
	case distance != nil:
		km = *distance
	default:
		km = c.cfg.RushFallbackKm
		usedFallback = true
	}
	km = clamp(km, c.cfg.RushMinKm, c.cfg.RushMaxKm)

	extra := math.Max(0, km-c.cfg.RushIncludedKm)
	fee := c.cfg.RushBase + int64(math.Round(extra*float64(c.cfg.RushPerKm)))
	return Quote{
		Fee:                  fee,
		Scope:                enums.ShippingScopeDistanceTiered,
		DistanceKm:           roundKm(&km),
		UsedFallbackDistance: usedFallback,
	}
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b types.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func distanceBetween(a, b *types.GeoPoint) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := HaversineKm(*a, *b)
	return &d
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func roundKm(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}
