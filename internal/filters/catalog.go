// Package filters turns raw query parameters into typed listing criteria and holds the
// per-kind filter vocabulary the aggregator builds predicates from.
package filters

import (
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
)

// FieldType is how a raw parameter value is coerced.
type FieldType int

const (
	TypeText FieldType = iota
	TypeEnum
	TypeInt
	TypeFloat
	TypeBool
)

// Field maps one filter parameter onto a store column.
type Field struct {
	Param  string
	Column string
	Type   FieldType
	Op     store.Op
	Enum   []string
}

// Spec is the filter vocabulary of one listing kind.
type Spec struct {
	Kind          models.Kind
	Fields        []Field
	SortColumns   map[string]string // sortBy param -> column
	SearchColumns []string
	// Ranges pairs lower and upper bound parameters, checked for min <= max.
	Ranges [][2]string

	byParam map[string]Field
}

// Field returns the filter field for a parameter name.
func (s *Spec) Field(param string) (Field, bool) {
	f, ok := s.byParam[param]
	return f, ok
}

// SortColumn resolves a sortBy value; ok is false for values outside the allow-list.
func (s *Spec) SortColumn(sortBy string) (string, bool) {
	col, ok := s.SortColumns[sortBy]
	return col, ok
}

var commonFields = []Field{
	{Param: "location", Column: "location", Type: TypeText, Op: store.OpContains},
	{Param: "priceMin", Column: "price", Type: TypeInt, Op: store.OpGte},
	{Param: "priceMax", Column: "price", Type: TypeInt, Op: store.OpLte},
	{Param: "featured", Column: "featured", Type: TypeBool, Op: store.OpEq},
	{Param: "agentId", Column: "agent_id", Type: TypeText, Op: store.OpEq},
}

var commonSorts = map[string]string{
	"price":     "price",
	"createdAt": "created_at",
	"views":     "views",
}

var catalog = map[models.Kind]*Spec{
	models.KindDwelling: newSpec(models.KindDwelling,
		[]Field{
			{Param: "category", Column: "dwelling.category", Type: TypeEnum, Op: store.OpEq, Enum: []string{"sale", "rent", "short-stay"}},
			{Param: "bedrooms", Column: "dwelling.bedrooms", Type: TypeInt, Op: store.OpGte},
			{Param: "bathrooms", Column: "dwelling.bathrooms", Type: TypeInt, Op: store.OpGte},
			{Param: "furnished", Column: "dwelling.furnished", Type: TypeBool, Op: store.OpEq},
			{Param: "areaMin", Column: "dwelling.floor_area", Type: TypeInt, Op: store.OpGte},
			{Param: "areaMax", Column: "dwelling.floor_area", Type: TypeInt, Op: store.OpLte},
		},
		map[string]string{"bedrooms": "dwelling.bedrooms", "area": "dwelling.floor_area"},
		[]string{"title", "description", "location"},
		[2]string{"areaMin", "areaMax"},
	),
	models.KindVehicle: newSpec(models.KindVehicle,
		[]Field{
			{Param: "make", Column: "vehicle.make", Type: TypeText, Op: store.OpEq},
			{Param: "model", Column: "vehicle.model", Type: TypeText, Op: store.OpEq},
			{Param: "yearMin", Column: "vehicle.year", Type: TypeInt, Op: store.OpGte},
			{Param: "yearMax", Column: "vehicle.year", Type: TypeInt, Op: store.OpLte},
			{Param: "mileageMax", Column: "vehicle.mileage", Type: TypeInt, Op: store.OpLte},
			{Param: "fuelType", Column: "vehicle.fuel_type", Type: TypeEnum, Op: store.OpEq, Enum: []string{"petrol", "diesel", "hybrid", "electric"}},
			{Param: "transmission", Column: "vehicle.transmission", Type: TypeEnum, Op: store.OpEq, Enum: []string{"automatic", "manual"}},
			{Param: "condition", Column: "vehicle.condition", Type: TypeEnum, Op: store.OpEq, Enum: []string{"new", "locally-used", "foreign-used"}},
		},
		map[string]string{"year": "vehicle.year", "mileage": "vehicle.mileage"},
		[]string{"title", "description", "vehicle.make", "vehicle.model"},
		[2]string{"yearMin", "yearMax"},
	),
	models.KindParcel: newSpec(models.KindParcel,
		[]Field{
			{Param: "areaMin", Column: "parcel.area", Type: TypeFloat, Op: store.OpGte},
			{Param: "areaMax", Column: "parcel.area", Type: TypeFloat, Op: store.OpLte},
			{Param: "areaUnit", Column: "parcel.area_unit", Type: TypeEnum, Op: store.OpEq, Enum: []string{"acres", "hectares", "sqm"}},
			{Param: "zoning", Column: "parcel.zoning", Type: TypeEnum, Op: store.OpEq, Enum: []string{"residential", "commercial", "agricultural", "industrial", "mixed"}},
		},
		map[string]string{"area": "parcel.area"},
		[]string{"title", "description", "location"},
		[2]string{"areaMin", "areaMax"},
	),
}

func newSpec(kind models.Kind, fields []Field, sorts map[string]string, search []string, ranges ...[2]string) *Spec {
	s := &Spec{
		Kind:          kind,
		Fields:        append(append([]Field{}, commonFields...), fields...),
		SortColumns:   make(map[string]string, len(commonSorts)+len(sorts)),
		SearchColumns: search,
		Ranges:        append([][2]string{{"priceMin", "priceMax"}}, ranges...),
		byParam:       make(map[string]Field),
	}
	for k, v := range commonSorts {
		s.SortColumns[k] = v
	}
	for k, v := range sorts {
		s.SortColumns[k] = v
	}
	for _, f := range s.Fields {
		s.byParam[f.Param] = f
	}
	return s
}

// Lookup returns the filter vocabulary of a kind, or nil for an unknown kind.
func Lookup(kind models.Kind) *Spec {
	return catalog[kind]
}
