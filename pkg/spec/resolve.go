package spec

// Source identifies where a spec contribution came from.
type Source string

const (
	SourceStorefrontProduct Source = "storefront_product"
	SourceStorefrontVariant Source = "storefront_variant"
	SourceAdmin             Source = "admin"
	SourceVendor            Source = "vendor"
	SourceText              Source = "text"
)

// Contribution is the spec one source offers for a product.
type Contribution struct {
	Source Source
	Spec   SpecMap
}

// Precedence orders sources from highest to lowest priority.
type Precedence []Source

// ListingPrecedence is used by the catalog listings. Storefront product
// data wins over Admin data once it is present.
var ListingPrecedence = Precedence{
	SourceStorefrontProduct,
	SourceStorefrontVariant,
	SourceAdmin,
	SourceVendor,
	SourceText,
}

// ItemPrecedence is used by single-product and handle-batch lookups,
// where Admin data wins.
var ItemPrecedence = Precedence{
	SourceAdmin,
	SourceStorefrontProduct,
	SourceStorefrontVariant,
	SourceVendor,
	SourceText,
}

// storefrontPrecedence merges the two Storefront collections only.
var storefrontPrecedence = Precedence{
	SourceStorefrontProduct,
	SourceStorefrontVariant,
}

// rank returns the position of src in p, or -1.
func (p Precedence) rank(src Source) int {
	for i, s := range p {
		if s == src {
			return i
		}
	}
	return -1
}

// Resolve merges contributions under the given precedence. Each
// contribution is canonicalized first, so within one source the first
// alias with a value wins; across sources the higher-ranked source wins.
// Contributions from sources absent from p are ignored.
func Resolve(p Precedence, contributions ...Contribution) SpecMap {
	ordered := make([]SpecMap, len(p))
	for _, c := range contributions {
		i := p.rank(c.Source)
		if i < 0 || len(c.Spec) == 0 {
			continue
		}
		canonical := Canonicalize(c.Spec)
		if ordered[i] == nil {
			ordered[i] = canonical
			continue
		}
		// same source twice: earlier contribution keeps its keys
		for k, v := range canonical {
			ordered[i].SetIfAbsent(k, v)
		}
	}

	out := make(SpecMap)
	for _, m := range ordered {
		for k, v := range m {
			out.SetIfAbsent(k, v)
		}
	}
	return out
}

// StorefrontSpec extracts and merges the product and variant metafields,
// product-level values winning.
func StorefrontSpec(productMetafields, variantMetafields []Metafield) SpecMap {
	return Resolve(storefrontPrecedence,
		Contribution{Source: SourceStorefrontProduct, Spec: Extract(productMetafields)},
		Contribution{Source: SourceStorefrontVariant, Spec: Extract(variantMetafields)},
	)
}

// AdminNeedOptions selects the optional attributes whose absence also
// justifies an Admin lookup.
type AdminNeedOptions struct {
	Drivetrain bool
	Category   bool
	BodyType   bool
}

// coreAttributes must be present for a product to skip the Admin source.
var coreAttributes = []string{AttrYear, AttrMileage, AttrTransmission, AttrFuelType}

// RequiredAttributes lists the attributes checked for the given options.
func RequiredAttributes(opts AdminNeedOptions) []string {
	attrs := append([]string(nil), coreAttributes...)
	if opts.Drivetrain {
		attrs = append(attrs, AttrDrivetrain)
	}
	if opts.Category {
		attrs = append(attrs, AttrCategory)
	}
	if opts.BodyType {
		attrs = append(attrs, AttrBodyType)
	}
	return attrs
}

// NeedsAdminSpec reports whether the Storefront metafields leave any
// required attribute unresolved.
func NeedsAdminSpec(productMetafields, variantMetafields []Metafield, opts AdminNeedOptions) bool {
	return len(Missing(StorefrontSpec(productMetafields, variantMetafields), opts)) > 0
}

// Missing returns the required attributes absent from a canonical spec.
func Missing(canonical SpecMap, opts AdminNeedOptions) []string {
	var missing []string
	for _, attr := range RequiredAttributes(opts) {
		if _, ok := canonical[attr]; !ok {
			missing = append(missing, attr)
		}
	}
	return missing
}

// VendorContribution turns a vendor name into a brand contribution.
func VendorContribution(vendor string) Contribution {
	m := make(SpecMap)
	m.Set(AttrBrand, vendor)
	return Contribution{Source: SourceVendor, Spec: m}
}
