package models

// Agent is the contact behind one or more listings.
type Agent struct {
	Base   `bson:",inline"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email,omitempty" json:"email,omitempty"`
	Phone  string `bson:"phone,omitempty" json:"phone,omitempty"`
	Avatar string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}
