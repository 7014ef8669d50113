package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which listing variant a record carries.
type Kind string

const (
	KindDwelling Kind = "dwelling"
	KindVehicle  Kind = "vehicle"
	KindParcel   Kind = "parcel"
)

// Kinds lists every listing kind in display order.
var Kinds = []Kind{KindDwelling, KindVehicle, KindParcel}

// ParseKind accepts the singular or plural form used in URLs ("dwellings", "vehicle", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dwelling", "dwellings", "property", "properties":
		return KindDwelling, nil
	case "vehicle", "vehicles":
		return KindVehicle, nil
	case "parcel", "parcels", "land":
		return KindParcel, nil
	}
	return "", fmt.Errorf("unknown listing kind %q", s)
}

// Plural returns the collection/table style name for the kind.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Status is the moderation state of a listing. Only the approval workflow changes it.
type Status string

const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusSold     Status = "sold"
	StatusRejected Status = "rejected"
)

// Statuses is the closed set of valid listing statuses.
var Statuses = []Status{StatusActive, StatusPending, StatusSold, StatusRejected}

// Dwelling holds the attributes specific to houses and apartments.
type Dwelling struct {
	Category  string `bson:"category" json:"category"` // sale, rent, short-stay
	Bedrooms  int    `bson:"bedrooms" json:"bedrooms"`
	Bathrooms int    `bson:"bathrooms" json:"bathrooms"`
	FloorArea int    `bson:"floor_area" json:"floor_area"` // square metres
	Furnished bool   `bson:"furnished" json:"furnished"`
}

// Vehicle holds the attributes specific to cars, bikes and trucks.
type Vehicle struct {
	Make         string `bson:"make" json:"make"`
	Model        string `bson:"model" json:"model"`
	Year         int    `bson:"year" json:"year"`
	Mileage      int    `bson:"mileage" json:"mileage"`
	FuelType     string `bson:"fuel_type" json:"fuel_type"`
	Transmission string `bson:"transmission" json:"transmission"`
	Condition    string `bson:"condition" json:"condition"`
}

// Parcel holds the attributes specific to land.
type Parcel struct {
	Area     float64 `bson:"area" json:"area"`
	AreaUnit string  `bson:"area_unit" json:"area_unit"` // acres, hectares, sqm
	Zoning   string  `bson:"zoning" json:"zoning"`
}

// Listing is a sellable or rentable unit. Exactly one of Dwelling, Vehicle or Parcel
// is set, matching Kind.
type Listing struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Kind        Kind      `bson:"kind" json:"kind"`
	Slug        string    `bson:"slug" json:"slug"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Location    string    `bson:"location" json:"location"`
	Price       int64     `bson:"price" json:"price"`
	Status      Status    `bson:"status" json:"status"`
	Featured    bool      `bson:"featured" json:"featured"`
	Views       int64     `bson:"views" json:"view_count"`
	AgentID     string    `bson:"agent_id,omitempty" json:"agent_id,omitempty"`
	FeaturesRaw string    `bson:"features" json:"-"` // stored form, decoded into Features
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`

	Dwelling *Dwelling `bson:"dwelling,omitempty" json:"dwelling,omitempty"`
	Vehicle  *Vehicle  `bson:"vehicle,omitempty" json:"vehicle,omitempty"`
	Parcel   *Parcel   `bson:"parcel,omitempty" json:"parcel,omitempty"`

	// Attached by the aggregator, never stored on the listing row.
	Features []string `bson:"-" json:"features"`
	Images   []Image  `bson:"-" json:"images"`
	Agent    *Agent   `bson:"-" json:"agent,omitempty"`
}

// Validate checks that the variant payload matches Kind.
func (l *Listing) Validate() error {
	if l.Title == "" {
		return fmt.Errorf("title is required")
	}
	if l.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	set := 0
	if l.Dwelling != nil {
		set++
	}
	if l.Vehicle != nil {
		set++
	}
	if l.Parcel != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("listing must carry exactly one kind payload, got %d", set)
	}
	switch l.Kind {
	case KindDwelling:
		if l.Dwelling == nil {
			return fmt.Errorf("dwelling listing without dwelling attributes")
		}
	case KindVehicle:
		if l.Vehicle == nil {
			return fmt.Errorf("vehicle listing without vehicle attributes")
		}
	case KindParcel:
		if l.Parcel == nil {
			return fmt.Errorf("parcel listing without parcel attributes")
		}
	default:
		return fmt.Errorf("unknown listing kind %q", l.Kind)
	}
	return nil
}
