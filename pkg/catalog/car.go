package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/Sternrassler/car-catalog/internal/shopify"
	"github.com/Sternrassler/car-catalog/pkg/spec"
)

// ErrNotFound is returned when a handle has no product.
var ErrNotFound = errors.New("car not found")

// Car is a normalized listing. Spec attributes are promoted to top-level
// fields; absent attributes are omitted, never empty.
type Car struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	Vendor      string    `json:"vendor,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Price       string    `json:"price,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Brand        string `json:"brand,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         string `json:"year,omitempty"`
	Mileage      string `json:"mileage,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	Drivetrain   string `json:"drivetrain,omitempty"`
	FuelType     string `json:"fuelType,omitempty"`
	Category     string `json:"category,omitempty"`
	BodyType     string `json:"bodyType,omitempty"`
	Engine       string `json:"engine,omitempty"`
	Color        string `json:"color,omitempty"`

	Features    []string `json:"features,omitempty"`
	DownPayment string   `json:"downPayment,omitempty"`
	Installment string   `json:"installment,omitempty"`

	Metafields CarMetafields `json:"metafields"`
}

// CarMetafields carries the merged spec for diagnostics.
type CarMetafields struct {
	Spec spec.SpecMap `json:"spec"`
}

// BrandCount is the number of listed cars of one brand.
type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// newCar resolves a product into a Car. admin may be nil.
func newCar(p shopify.Product, admin spec.SpecMap, precedence spec.Precedence) Car {
	text := spec.ParseText(p.Title, p.Tags, p.Description)
	merged := spec.Resolve(precedence,
		spec.Contribution{Source: spec.SourceStorefrontProduct, Spec: spec.Extract(p.Metafields)},
		spec.Contribution{Source: spec.SourceStorefrontVariant, Spec: spec.Extract(p.VariantMetafields())},
		spec.Contribution{Source: spec.SourceAdmin, Spec: admin},
		spec.VendorContribution(p.Vendor),
		spec.Contribution{Source: spec.SourceText, Spec: text.SpecMap()},
	)

	car := Car{
		ID:          p.ID,
		Handle:      p.Handle,
		Title:       strings.TrimSpace(p.Title),
		Vendor:      strings.TrimSpace(p.Vendor),
		Description: strings.TrimSpace(p.Description),
		Tags:        p.Tags,
		Images:      p.ImageURLs(),
		Available:   p.AvailableForSale,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,

		Brand:        merged[spec.AttrBrand],
		Model:        merged[spec.AttrModel],
		Year:         merged[spec.AttrYear],
		Mileage:      merged[spec.AttrMileage],
		Transmission: merged[spec.AttrTransmission],
		Drivetrain:   merged[spec.AttrDrivetrain],
		FuelType:     merged[spec.AttrFuelType],
		Category:     merged[spec.AttrCategory],
		BodyType:     merged[spec.AttrBodyType],
		Engine:       merged[spec.AttrEngine],
		Color:        merged[spec.AttrColor],

		Features:    text.Features,
		DownPayment: text.DownPayment,
		Installment: text.Installment,

		Metafields: CarMetafields{Spec: merged},
	}
	if price := p.Price(); price != nil {
		car.Price = price.Amount
		car.Currency = price.CurrencyCode
	}
	return car
}
