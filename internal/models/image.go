package models

// Image references a picture of a listing. EntityType/EntityID is a weak back-reference:
// deleting an image never touches the listing.
type Image struct {
	ID         string `bson:"_id,omitempty" json:"id"`
	URL        string `bson:"url" json:"url"`
	Alt        string `bson:"alt" json:"alt"`
	IsMain     bool   `bson:"is_main" json:"is_main"`
	Order      int    `bson:"order" json:"order"`
	EntityType Kind   `bson:"entity_type" json:"entity_type"`
	EntityID   string `bson:"entity_id" json:"entity_id"`
}
