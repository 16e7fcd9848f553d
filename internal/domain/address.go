package domain

import (
	"fmt"
	"time"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Address is a delivery address. For a user with at least one address exactly
// one of them has IsDefault set.
type Address struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Label     string    `json:"label,omitempty"`
	Line      string    `json:"line"`
	Reference string    `json:"reference,omitempty"`
	Location  *GeoPoint `json:"location,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// DestinationKind is the shipping tier input: no address, an address without
// coordinates, or a geocoded address.
type DestinationKind int

const (
	DestinationNone DestinationKind = iota
	DestinationAddress
	DestinationGeocoded
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationAddress:
		return "address"
	case DestinationGeocoded:
		return "geocoded"
	default:
		return "none"
	}
}

type Destination struct {
	Kind    DestinationKind
	Address *Address
}

func DestinationFor(a *Address) Destination {
	switch {
	case a == nil:
		return Destination{Kind: DestinationNone}
	case a.Location != nil:
		return Destination{Kind: DestinationGeocoded, Address: a}
	default:
		return Destination{Kind: DestinationAddress, Address: a}
	}
}

func (k DestinationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DestinationKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "address":
		*k = DestinationAddress
	case "geocoded":
		*k = DestinationGeocoded
	case "none", "":
		*k = DestinationNone
	default:
		return fmt.Errorf("unknown destination kind %q", text)
	}
	return nil
}
