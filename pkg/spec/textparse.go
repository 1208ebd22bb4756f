package spec

import (
	"regexp"
	"strconv"
	"strings"
)

// Thai Buddhist calendar offset from the Gregorian calendar.
const buddhistEraOffset = 543

// Display values produced by the text parser.
const (
	TransmissionAuto   = "อัตโนมัติ"
	TransmissionManual = "ธรรมดา"

	FeatureFreeDown       = "ฟรีดาวน์"
	FeatureLowInstallment = "ผ่อนถูก"
	FeatureHybrid         = "ไฮบริด"
	FeatureFourWheelDrive = "ขับเคลื่อน 4 ล้อ"
)

// brandVocabulary is matched case-insensitively as a substring of the title,
// first entry wins. Longer names precede their prefixes.
var brandVocabulary = []string{
	"toyota", "honda", "nissan", "mazda", "isuzu", "mitsubishi", "ford",
	"chevrolet", "suzuki", "hyundai", "kia", "subaru", "lexus", "volvo",
	"mercedes-benz", "benz", "bmw", "audi", "volkswagen", "porsche", "peugeot",
	"mini", "jeep", "tata", "byd", "gwm", "haval", "mg",
}

// modelVocabulary is matched as a whole token of the title, first entry wins.
var modelVocabulary = []string{
	"civic", "accord", "city", "jazz", "brio", "hr-v", "cr-v", "br-v", "mobilio",
	"camry", "corolla", "altis", "vios", "yaris", "fortuner", "hilux", "revo", "vigo",
	"innova", "commuter", "alphard", "chr", "c-hr",
	"d-max", "mu-x", "mu-7",
	"almera", "navara", "march", "note", "sylphy", "teana", "terra", "kicks", "x-trail",
	"mazda2", "mazda3", "cx-3", "cx-30", "cx-5", "cx-8", "bt-50",
	"ranger", "everest", "fiesta", "focus",
	"triton", "pajero", "xpander", "attrage", "mirage", "outlander",
	"swift", "ciaz", "ertiga", "celerio", "carry",
	"colorado", "trailblazer", "captiva",
	"zs", "hs", "mg3", "mg5", "extender",
}

// AT and MT only count in upper case; lower case they are ordinary words.
var (
	gregorianYearPattern = regexp.MustCompile(`(?:^|[^0-9])((?:19[89]|20[0-4])[0-9])(?:[^0-9]|$)`)
	buddhistYearPattern  = regexp.MustCompile(`(?:^|[^0-9])(25[2-9][0-9])(?:[^0-9]|$)`)
	enginePattern        = regexp.MustCompile(`(?:^|[^0-9.])([0-9]\.[0-9]{1,2})\s*[lL]?(?:[^0-9a-zA-Z]|$)`)
	autoPattern          = regexp.MustCompile(`(?:^|[^A-Za-z])(?:AT|(?i:auto|a/t|automatic))(?:[^A-Za-z]|$)|ออโต้|อัตโนมัติ`)
	manualPattern        = regexp.MustCompile(`(?:^|[^A-Za-z])(?:MT|(?i:manual|m/t))(?:[^A-Za-z]|$)|ธรรมดา|เกียร์กระปุก`)

	mileagePattern     = regexp.MustCompile(`(?i)([0-9][0-9,]*)\s*(?:km\.?|kms|kilometers?|กม\.?|กิโลเมตร|กิโล)`)
	downPaymentPattern = regexp.MustCompile(`(?i)(?:ดาวน์|down\s*payment|down)\s*:?\s*([0-9][0-9,]*)`)
	installmentPattern = regexp.MustCompile(`(?i)(?:ผ่อน\s*\p{Thai}{0,12}|installment|monthly)\s*:?\s*([0-9][0-9,]*)`)
)

// tagFamily maps tag keywords to a category and body type.
type tagFamily struct {
	keywords []string
	category string
	bodyType string
}

var bodyFamilies = []tagFamily{
	{keywords: []string{"กระบะ", "pickup", "pick-up", "pick up"}, category: "รถกระบะ", bodyType: "Pickup"},
	{keywords: []string{"suv", "เอสยูวี", "ppv"}, category: "รถ SUV", bodyType: "SUV"},
	{keywords: []string{"เก๋ง", "sedan", "ซีดาน"}, category: "รถเก๋ง", bodyType: "Sedan"},
	{keywords: []string{"รถตู้", "ตู้", "van", "mpv"}, category: "รถตู้", bodyType: "Van"},
	{keywords: []string{"แฮทช์แบ็ก", "แฮทช์แบค", "hatchback", "hatch"}, category: "รถแฮทช์แบ็ก", bodyType: "Hatchback"},
}

type fuelFamily struct {
	keywords []string
	fuel     string
}

var fuelFamilies = []fuelFamily{
	{keywords: []string{"ดีเซล", "diesel"}, fuel: "Diesel"},
	{keywords: []string{"เบนซิน", "gasoline", "petrol", "แก๊สโซฮอล์"}, fuel: "Gasoline"},
	{keywords: []string{"ไฮบริด", "hybrid"}, fuel: "Hybrid"},
	{keywords: []string{"ไฟฟ้า", "electric", "ev"}, fuel: "Electric"},
}

type featureFlag struct {
	keywords []string
	feature  string
}

var featureFlags = []featureFlag{
	{keywords: []string{"ฟรีดาวน์", "free down", "freedown"}, feature: FeatureFreeDown},
	{keywords: []string{"ผ่อนถูก", "low installment"}, feature: FeatureLowInstallment},
	{keywords: []string{"ไฮบริด", "hybrid"}, feature: FeatureHybrid},
	{keywords: []string{"4wd", "4x4", "ขับสี่", "ขับเคลื่อน 4 ล้อ"}, feature: FeatureFourWheelDrive},
}

// TitleSpec holds what can be read from a listing title.
type TitleSpec struct {
	Brand        string
	Model        string
	Year         string
	Engine       string
	Transmission string
}

// TagSpec holds what can be read from listing tags.
type TagSpec struct {
	Category string
	BodyType string
	FuelType string
	Features []string
}

// DescriptionSpec holds what can be read from a listing description.
type DescriptionSpec struct {
	Mileage     string
	DownPayment string
	Installment string
}

// TextSpec combines the three free-text sources.
type TextSpec struct {
	TitleSpec
	TagSpec
	DescriptionSpec
}

// ParseTitle extracts brand, model, year, engine and transmission.
func ParseTitle(title string) TitleSpec {
	var out TitleSpec
	lower := strings.ToLower(title)

	for _, brand := range brandVocabulary {
		if strings.Contains(lower, brand) {
			out.Brand = brand
			break
		}
	}

	for _, model := range modelVocabulary {
		if containsToken(lower, model) {
			out.Model = model
			break
		}
	}

	if m := gregorianYearPattern.FindStringSubmatch(title); m != nil {
		out.Year = m[1]
	} else if m := buddhistYearPattern.FindStringSubmatch(title); m != nil {
		if be, err := strconv.Atoi(m[1]); err == nil {
			out.Year = strconv.Itoa(be - buddhistEraOffset)
		}
	}

	if m := enginePattern.FindStringSubmatch(title); m != nil {
		out.Engine = m[1] + "L"
	}

	switch {
	case autoPattern.MatchString(title):
		out.Transmission = TransmissionAuto
	case manualPattern.MatchString(title):
		out.Transmission = TransmissionManual
	}

	return out
}

// ParseTags extracts category, body type, fuel type and feature flags.
func ParseTags(tags []string) TagSpec {
	var out TagSpec
	lowered := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}

	for _, tag := range lowered {
		if out.Category == "" {
			for _, fam := range bodyFamilies {
				if matchesAny(tag, fam.keywords) {
					out.Category, out.BodyType = fam.category, fam.bodyType
					break
				}
			}
		}
		if out.FuelType == "" {
			for _, fam := range fuelFamilies {
				if matchesAny(tag, fam.keywords) {
					out.FuelType = fam.fuel
					break
				}
			}
		}
	}

	for _, flag := range featureFlags {
		for _, tag := range lowered {
			if matchesAny(tag, flag.keywords) {
				out.Features = append(out.Features, flag.feature)
				break
			}
		}
	}

	return out
}

// ParseDescription extracts mileage, down payment and installment amounts.
// Each uses the first match only.
func ParseDescription(description string) DescriptionSpec {
	var out DescriptionSpec
	if m := mileagePattern.FindStringSubmatch(description); m != nil {
		out.Mileage = stripCommas(m[1])
	}
	if m := downPaymentPattern.FindStringSubmatch(description); m != nil {
		out.DownPayment = stripCommas(m[1])
	}
	if m := installmentPattern.FindStringSubmatch(description); m != nil {
		out.Installment = stripCommas(m[1])
	}
	return out
}

// ParseText runs all three parsers.
func ParseText(title string, tags []string, description string) TextSpec {
	return TextSpec{
		TitleSpec:       ParseTitle(title),
		TagSpec:         ParseTags(tags),
		DescriptionSpec: ParseDescription(description),
	}
}

// SpecMap returns the canonical attributes found in the text.
func (t TextSpec) SpecMap() SpecMap {
	out := make(SpecMap)
	out.Set(AttrBrand, t.Brand)
	out.Set(AttrModel, t.Model)
	out.Set(AttrYear, t.Year)
	out.Set(AttrEngine, t.Engine)
	out.Set(AttrTransmission, t.Transmission)
	out.Set(AttrCategory, t.Category)
	out.Set(AttrBodyType, t.BodyType)
	out.Set(AttrFuelType, t.FuelType)
	out.Set(AttrMileage, t.Mileage)
	if hasFeature(t.Features, FeatureFourWheelDrive) {
		out.Set(AttrDrivetrain, "4WD")
	}
	return out
}

func hasFeature(features []string, want string) bool {
	for _, f := range features {
		if f == want {
			return true
		}
	}
	return false
}

// matchesAny reports whether tag contains one of the keywords. Short ASCII
// keywords must match a whole token so that "ev" does not hit "everest".
func matchesAny(tag string, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) <= 3 && isASCII(kw) {
			if containsToken(tag, kw) {
				return true
			}
			continue
		}
		if strings.Contains(tag, kw) {
			return true
		}
	}
	return false
}

// containsToken reports whether word occurs in s bounded by non-alphanumerics.
func containsToken(s, word string) bool {
	for start := 0; start <= len(s)-len(word); {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if (i == 0 || !isASCIIAlnum(s[i-1])) && (end == len(s) || !isASCIIAlnum(s[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isASCIIAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
