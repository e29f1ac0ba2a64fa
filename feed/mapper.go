package feed

import (
	"fmt"
	"strings"

	"propsync/models"
)

// Two-letter property type codes fixed by the vendor.
var propertyTypes = map[string]string{
	"AP": "Apartment",
	"VH": "Villa",
	"TH": "Townhouse",
	"PH": "Penthouse",
	"OF": "Office",
	"RE": "Retail",
	"WH": "Warehouse",
	"PL": "Plot",
	"FA": "Factory",
}

var commercialTypes = map[string]bool{
	"OF": true,
	"RE": true,
	"WH": true,
	"FA": true,
}

const defaultPropertyType = "Apartment"

// Default amenity sets substituted when the feed supplies none.
const (
	commercialAmenities = "Covered Parking,Security,Central A/C,Pantry,Conference Room"
	villaAmenities      = "Private Garden,Maids Room,Covered Parking,Built in Wardrobes,Private Pool"
	apartmentAmenities  = "Balcony,Built in Wardrobes,Covered Parking,Shared Pool,Shared Gym,Security"
)

// Feed escaping leaves stray backticks, quotes, and backslashes in URLs.
var urlSanitizer = strings.NewReplacer("`", "", `"`, "", "'", "", `\`, "")

// MapProperty normalizes one raw feed entry into the internal property
// shape. It performs no I/O and never consults the entry's surroundings;
// the same entry always maps to the same record. A panic during mapping is
// returned as an error carrying the entry's reference so the caller can
// attribute it.
func MapProperty(p Property) (prop models.Property, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("map property %q: %v", p.Reference.First(), r)
		}
	}()

	typeCode := strings.ToUpper(strings.TrimSpace(p.TypeCode.First()))
	propType, ok := propertyTypes[typeCode]
	if !ok {
		propType = defaultPropertyType
	}

	price := 0
	if n := p.PriceYearly().Int(); n != nil {
		price = *n
	}

	furnished := strings.ToLower(p.Furnished.First())

	prop = models.Property{
		Reference:      strings.TrimSpace(p.Reference.First()),
		ListingType:    listingType(p.OfferingType.First()),
		PropertyType:   propType,
		Community:      p.Community.First(),
		SubCommunity:   p.SubCommunity.First(),
		Region:         p.City.First(),
		Country:        p.Country.First(),
		Price:          price,
		Currency:       "AED",
		Bedrooms:       p.Bedroom.Int(),
		Bathrooms:      p.Bathroom.Int(),
		PropertyStatus: propertyStatus(p.CompletionStatus.First()),
		Title:          p.Title.First(),
		Description:    StripHTML(p.Description.First()),
		SqfeetArea:     p.Size.Int(),
		SqfeetBuiltup:  p.BuiltUpArea.Int(),
		Amenities:      amenities(p.PrivateAmenities.First(), typeCode),
		IsFitted:       strings.Contains(furnished, "partly"),
		IsFurnished:    strings.Contains(furnished, "fully"),
		Images:         sanitizeURLs(p.PhotoURLs()),
		Agent:          mapAgent(p.Agents),
		Development:    strPtr(p.PropertyName.First()),
		Neighbourhood:  nil,
		Sold:           false,
	}
	return prop, nil
}

func listingType(offering string) string {
	if offering == "RR" {
		return models.ListingTypeRent
	}
	return models.ListingTypeSale
}

func propertyStatus(completion string) string {
	if completion == "completed" {
		return models.PropertyStatusReady
	}
	return models.PropertyStatusOffPlan
}

// amenities returns the feed's own list when present, otherwise the default
// set for the entry's category.
func amenities(supplied, typeCode string) string {
	if s := strings.TrimSpace(supplied); s != "" {
		return s
	}
	switch {
	case commercialTypes[typeCode]:
		return commercialAmenities
	case typeCode == "VH" || typeCode == "TH":
		return villaAmenities
	default:
		return apartmentAmenities
	}
}

// mapAgent keeps the first agent block as a one-element slice, nil when the
// feed carries none.
func mapAgent(agents []Agent) []models.Agent {
	if len(agents) == 0 {
		return nil
	}
	return []models.Agent{{
		ID:   agents[0].ID.First(),
		Name: agents[0].Name.First(),
	}}
}

func sanitizeURLs(raw []string) []string {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(urlSanitizer.Replace(u))
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
