package models

import (
	"github.com/owuorvin/jubabuy/internal/utils"
)

// Base carries the id of records that are upserted by the aggregator, such as agents.
type Base struct {
	ID string `bson:"_id,omitempty" json:"id,omitempty"`
}

// GenIDIfEmpty assigns a fresh id to a record that has none.
func (m *Base) GenIDIfEmpty() {
	if m.ID == "" {
		m.ID = utils.NewSixID().String()
	}
}
