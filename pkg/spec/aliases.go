package spec

import "strings"

// Canonical attribute names.
const (
	AttrYear         = "year"
	AttrMileage      = "mileage"
	AttrTransmission = "transmission"
	AttrDrivetrain   = "drivetrain"
	AttrFuelType     = "fuel_type"
	AttrCategory     = "category"
	AttrBodyType     = "body_type"
	AttrBrand        = "brand"
	AttrModel        = "model"
	AttrEngine       = "engine"
	AttrColor        = "color"
)

// Attributes lists every canonical attribute in display order.
var Attributes = []string{
	AttrBrand,
	AttrModel,
	AttrYear,
	AttrMileage,
	AttrTransmission,
	AttrDrivetrain,
	AttrFuelType,
	AttrCategory,
	AttrBodyType,
	AttrEngine,
	AttrColor,
}

// aliases holds the recognized keys for each canonical attribute, already
// normalized with NormalizeKey. Order matters: the first alias with a
// non-empty value wins.
var aliases = map[string][]string{
	AttrYear: {
		"year", "car_year", "model_year", "registration_year", "ปี", "ปีรถ", "ปีที่ผลิต", "ปีจดทะเบียน",
	},
	AttrMileage: {
		"mileage", "odometer", "kilometers", "km", "เลขไมล์", "ไมล์", "ระยะทาง", "ระยะทางที่วิ่ง",
	},
	AttrTransmission: {
		"transmission", "gear", "gearbox", "gear_type", "เกียร์", "ระบบเกียร์",
	},
	AttrDrivetrain: {
		"drivetrain", "drive_train", "drive_type", "drive", "wheel_drive", "ระบบขับเคลื่อน", "ขับเคลื่อน",
	},
	AttrFuelType: {
		"fuel_type", "fuel", "fueltype", "engine_fuel", "เชื้อเพลิง", "ประเภทเชื้อเพลิง", "น้ำมัน",
	},
	AttrCategory: {
		"category", "car_category", "vehicle_category", "car_type", "vehicle_type", "ประเภทรถ", "หมวดหมู่",
	},
	AttrBodyType: {
		"body_type", "bodytype", "body_style", "body", "ตัวถัง", "รูปแบบตัวถัง", "ประเภทตัวถัง",
	},
	AttrBrand: {
		"brand", "make", "car_brand", "manufacturer", "ยี่ห้อ", "แบรนด์",
	},
	AttrModel: {
		"model", "car_model", "model_name", "รุ่น", "รุ่นรถ",
	},
	AttrEngine: {
		"engine", "engine_size", "displacement", "engine_cc", "เครื่องยนต์", "ขนาดเครื่องยนต์",
	},
	AttrColor: {
		"color", "colour", "exterior_color", "สี", "สีรถ",
	},
}

// canonicalByAlias is the reverse index of aliases.
var canonicalByAlias = func() map[string]string {
	out := make(map[string]string)
	for canonical, list := range aliases {
		for _, alias := range list {
			out[alias] = canonical
		}
	}
	return out
}()

// NormalizeKey lowercases key and folds spaces and hyphens into underscores.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

// Aliases returns the recognized keys for a canonical attribute.
func Aliases(attr string) []string {
	list := aliases[attr]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// CanonicalKey maps any recognized alias to its canonical attribute.
// Unrecognized keys are returned normalized.
func CanonicalKey(key string) (string, bool) {
	k := NormalizeKey(key)
	if canonical, ok := canonicalByAlias[k]; ok {
		return canonical, true
	}
	return k, false
}

// Pick returns the first non-empty value among the aliases of attr.
func Pick(raw SpecMap, attr string) (string, bool) {
	for _, alias := range aliases[attr] {
		if v := strings.TrimSpace(raw[alias]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Canonicalize resolves every canonical attribute of raw through its
// alias list. Keys that are not aliases of any attribute are kept as is.
func Canonicalize(raw SpecMap) SpecMap {
	out := make(SpecMap, len(raw))
	for _, attr := range Attributes {
		if v, ok := Pick(raw, attr); ok {
			out[attr] = v
		}
	}
	for k, v := range raw {
		if _, isAlias := canonicalByAlias[k]; isAlias {
			continue
		}
		out.SetIfAbsent(k, v)
	}
	return out
}
