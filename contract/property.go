package contract

import (
	"strings"

	"github.com/MariamAlaa-8/realstate-backend/errs"
)

// Governorate is one of the 27 Egyptian governorates, stored by its Arabic name.
type Governorate string

const (
	Cairo        Governorate = "القاهرة"
	Giza         Governorate = "الجيزة"
	Alexandria   Governorate = "الإسكندرية"
	Dakahlia     Governorate = "الدقهلية"
	RedSea       Governorate = "البحر الأحمر"
	Beheira      Governorate = "البحيرة"
	Fayoum       Governorate = "الفيوم"
	Gharbia      Governorate = "الغربية"
	Ismailia     Governorate = "الإسماعيلية"
	Monufia      Governorate = "المنوفية"
	Minya        Governorate = "المنيا"
	Qalyubia     Governorate = "القليوبية"
	NewValley    Governorate = "الوادي الجديد"
	Suez         Governorate = "السويس"
	Aswan        Governorate = "اسوان"
	Asyut        Governorate = "اسيوط"
	BeniSuef     Governorate = "بني سويف"
	PortSaid     Governorate = "بورسعيد"
	Damietta     Governorate = "دمياط"
	Sharqia      Governorate = "الشرقية"
	SouthSinai   Governorate = "جنوب سيناء"
	KafrElSheikh Governorate = "كفر الشيخ"
	Matrouh      Governorate = "مطروح"
	Luxor        Governorate = "الأقصر"
	Qena         Governorate = "قنا"
	NorthSinai   Governorate = "شمال سيناء"
	Sohag        Governorate = "سوهاج"
)

var governorates = []Governorate{
	Cairo, Giza, Alexandria, Dakahlia, RedSea, Beheira, Fayoum, Gharbia, Ismailia,
	Monufia, Minya, Qalyubia, NewValley, Suez, Aswan, Asyut, BeniSuef, PortSaid,
	Damietta, Sharqia, SouthSinai, KafrElSheikh, Matrouh, Luxor, Qena, NorthSinai, Sohag,
}

// Governorates lists the closed set in registry order.
func Governorates() []Governorate {
	out := make([]Governorate, len(governorates))
	copy(out, governorates)
	return out
}

func (g Governorate) Valid() bool {
	for _, known := range governorates {
		if g == known {
			return true
		}
	}
	return false
}

// Category is the property category.
type Category string

const (
	CategoryResidential Category = "سكني"
	CategoryCommercial  Category = "تجاري / إداري"
	CategoryLand        Category = "أراضي"
	CategoryIndustrial  Category = "صناعي"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryResidential, CategoryCommercial, CategoryLand, CategoryIndustrial:
		return true
	}
	return false
}

// Property types that describe a unit inside a building.
const (
	TypeApartment = "شقة"
	TypeDuplex    = "دوبلكس"
	TypeStudio    = "ستوديو"
	TypePenthouse = "بنتهاوس"
	TypeOffice    = "مكتب إداري"
	TypeClinic    = "عيادة"
)

var stackedTypes = map[string]struct{}{
	TypeApartment: {},
	TypeDuplex:    {},
	TypeStudio:    {},
	TypePenthouse: {},
	TypeOffice:    {},
	TypeClinic:    {},
}

// FloorRequired reports whether propertyType is a vertically stacked unit.
func FloorRequired(propertyType string) bool {
	_, ok := stackedTypes[strings.TrimSpace(propertyType)]
	return ok
}

// Property is the immutable descriptor copied from a seller's record onto the
// buyer-side record of a sale.
type Property struct {
	Number      string
	Address     string
	Governorate Governorate
	Category    Category
	Type        string
	Floor       *int
	Area        float64
	Price       int64
}

// Validate reports the first missing or malformed field.
func (p Property) Validate() error {
	switch {
	case strings.TrimSpace(p.Number) == "":
		return errs.New(errs.CodeValidation, "contract: property number is required")
	case strings.TrimSpace(p.Address) == "":
		return errs.New(errs.CodeValidation, "contract: address is required")
	case !p.Governorate.Valid():
		return errs.Newf(errs.CodeValidation, "contract: unknown governorate %q", p.Governorate)
	case !p.Category.Valid():
		return errs.Newf(errs.CodeValidation, "contract: unknown property category %q", p.Category)
	case strings.TrimSpace(p.Type) == "":
		return errs.New(errs.CodeValidation, "contract: property type is required")
	case FloorRequired(p.Type) && p.Floor == nil:
		return errs.Newf(errs.CodeValidation, "contract: floor is required for %s", p.Type)
	case p.Area <= 0:
		return errs.New(errs.CodeValidation, "contract: area must be positive")
	case p.Price <= 0:
		return errs.New(errs.CodeValidation, "contract: price must be positive")
	}
	return nil
}

// ValidateOwner checks the submitting owner's identity fields.
func ValidateOwner(o Owner, ownershipPercentage float64) error {
	switch {
	case strings.TrimSpace(o.FullName) == "":
		return errs.New(errs.CodeValidation, "contract: owner full name is required")
	case strings.TrimSpace(o.NationalID) == "":
		return errs.New(errs.CodeValidation, "contract: owner national id is required")
	case strings.TrimSpace(o.Phone) == "":
		return errs.New(errs.CodeValidation, "contract: owner phone is required")
	case ownershipPercentage <= 0 || ownershipPercentage > 100:
		return errs.Newf(errs.CodeValidation, "contract: ownership percentage %.2f out of range", ownershipPercentage)
	}
	return nil
}
