package listing

import (
	"strings"

	"github.com/iliyamo/real-estate-listings/internal/model"
)

// Draft carries the owner-editable fields of a listing.
type Draft struct {
	Title       string  `json:"title" form:"title"`
	City        string  `json:"city" form:"city"`
	Address     string  `json:"address" form:"address"`
	Type        string  `json:"listing_type" form:"listing_type"`
	Price       float64 `json:"price" form:"price"`
	Bedrooms    int     `json:"bedrooms" form:"bedrooms"`
	Bathrooms   int     `json:"bathrooms" form:"bathrooms"`
	AreaSqM     int     `json:"area_sq_m" form:"area_sq_m"`
	Description string  `json:"description" form:"description"`
}

// Normalize trims text fields and lower-cases the listing type.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.City = strings.TrimSpace(d.City)
	d.Address = strings.TrimSpace(d.Address)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.Description = strings.TrimSpace(d.Description)
	return d
}

// Validate returns a *ValidationError naming every bad field, or nil.
func (d Draft) Validate() error {
	d = d.Normalize()
	bad := map[string]string{}
	if d.Title == "" {
		bad["title"] = "title is required"
	}
	if d.City == "" {
		bad["city"] = "city is required"
	}
	if d.Address == "" {
		bad["address"] = "address is required"
	}
	if d.Type != model.TypeSale && d.Type != model.TypeRent {
		bad["listing_type"] = "listing type must be sale or rent"
	}
	if d.Price <= 0 {
		bad["price"] = "price must be greater than zero"
	}
	if d.Bedrooms < 0 {
		bad["bedrooms"] = "bedrooms must be 0 or more"
	}
	if d.Bathrooms < 0 {
		bad["bathrooms"] = "bathrooms must be 0 or more"
	}
	if d.AreaSqM <= 0 {
		bad["area_sq_m"] = "area must be greater than zero"
	}
	if d.Description == "" {
		bad["description"] = "description is required"
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// apply copies the draft's fields onto l.
func (d Draft) apply(l *model.Listing) {
	d = d.Normalize()
	l.Title = d.Title
	l.City = d.City
	l.Address = d.Address
	l.Type = d.Type
	l.Price = d.Price
	l.Bedrooms = d.Bedrooms
	l.Bathrooms = d.Bathrooms
	l.AreaSqM = d.AreaSqM
	l.Description = d.Description
}
