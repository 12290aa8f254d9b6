package listings

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedListing is the structured payload extracted from free-form
// listing text. Absent fields are omitted so the result can be posted
// back as a listing payload unchanged.
type ParsedListing struct {
	Price     *float64 `json:"price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Rooms     *float64 `json:"rooms,omitempty"`
	AreaM2    *float64 `json:"area_m2,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	Address   string   `json:"address,omitempty"`
	Amenities []string `json:"amenities,omitempty"`
}

// Empty reports whether nothing was extracted.
func (p *ParsedListing) Empty() bool {
	return p.Price == nil && p.Rooms == nil && p.AreaM2 == nil &&
		p.Floor == nil && p.Address == "" && len(p.Amenities) == 0
}

// number matches "450000", "450,000", "1 250 000" and "2.5" without
// swallowing a following comma-separated clause.
const number = `\d+(?:[,\s]\d{3})*(?:\.\d+)?`

var (
	priceSymbolRe  = regexp.MustCompile(`([€$£])\s*(` + number + `)\s*([kKmM])?`)
	priceSuffixRe  = regexp.MustCompile(`(?i)(` + number + `)\s*([km])?\s*(€|\$|£|eur\b|usd\b|gbp\b)`)
	priceKeywordRe = regexp.MustCompile(`(?i)\bprice\s*[:=]?\s*(` + number + `)\s*([km])?`)

	roomsRe = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d)?)\s*-?\s*(?:bed(?:room)?s?|rooms?|br)\b`)
	areaRe  = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(?:m2|m²|sqm|sq\.?\s?m(?:eters?|etres?)?|square\s+met(?:er|re)s?)\b`)

	floorOrdinalRe = regexp.MustCompile(`(?i)\b(\d+)(?:st|nd|rd|th)?\s+floor\b`)
	floorKeywordRe = regexp.MustCompile(`(?i)\bfloor\s*[:#]?\s*(\d+)\b`)
	groundFloorRe  = regexp.MustCompile(`(?i)\bground\s+floor\b`)

	addressLabelRe  = regexp.MustCompile(`(?i)\baddress\s*[:=]\s*([^\n\r]+)`)
	addressStreetRe = regexp.MustCompile(`\b\d+[a-zA-Z]?\s+[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\s+(?:Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Boulevard|Blvd|Drive|Dr|Way|Square|Sq|Place|Pl)\b`)
)

var currencyNames = map[string]string{
	"€": "EUR", "eur": "EUR",
	"$": "USD", "usd": "USD",
	"£": "GBP", "gbp": "GBP",
}

// amenityWords maps detection patterns to the canonical amenity name.
// Order fixes the output order.
var amenityWords = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)\bbalcon(?:y|ies)\b`), "balcony"},
	{regexp.MustCompile(`(?i)\bterrace\b`), "terrace"},
	{regexp.MustCompile(`(?i)\bgarden\b`), "garden"},
	{regexp.MustCompile(`(?i)\bparking\b`), "parking"},
	{regexp.MustCompile(`(?i)\bgarage\b`), "garage"},
	{regexp.MustCompile(`(?i)\b(?:elevator|lift)\b`), "elevator"},
	{regexp.MustCompile(`(?i)\b(?:swimming\s+)?pool\b`), "pool"},
	{regexp.MustCompile(`(?i)\bbasement\b`), "basement"},
	{regexp.MustCompile(`(?i)\bfurnished\b`), "furnished"},
	{regexp.MustCompile(`(?i)\bfireplace\b`), "fireplace"},
	{regexp.MustCompile(`(?i)\bair\s*-?\s*con(?:ditioning)?\b`), "air conditioning"},
	{regexp.MustCompile(`(?i)\bdishwasher\b`), "dishwasher"},
	{regexp.MustCompile(`(?i)\bgym\b`), "gym"},
	{regexp.MustCompile(`(?i)\bsauna\b`), "sauna"},
	{regexp.MustCompile(`(?i)\bconcierge\b`), "concierge"},
	{regexp.MustCompile(`(?i)\bstorage\b`), "storage"},
	{regexp.MustCompile(`(?i)\bpet[\s-]?friendly\b`), "pet friendly"},
}

// ParseListingText extracts listing fields from free text with fixed
// rules. The same input always yields the same output.
func ParseListingText(text string) *ParsedListing {
	p := &ParsedListing{}
	parsePrice(text, p)
	parseRooms(text, p)
	parseArea(text, p)
	parseFloor(text, p)
	parseAddress(text, p)
	parseAmenities(text, p)
	return p
}

// parseNumber reads "450,000", "1 250 000" or "2.5". Commas and spaces
// are treated as thousands separators, the dot as the decimal point.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func applyMultiplier(v float64, suffix string) float64 {
	switch strings.ToLower(suffix) {
	case "k":
		return v * 1_000
	case "m":
		return v * 1_000_000
	}
	return v
}

func parsePrice(text string, p *ParsedListing) {
	if m := priceSymbolRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[2]); ok {
			v = applyMultiplier(v, m[3])
			p.Price = &v
			p.Currency = currencyNames[strings.ToLower(m[1])]
			return
		}
	}
	if m := priceSuffixRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			v = applyMultiplier(v, m[2])
			p.Price = &v
			p.Currency = currencyNames[strings.ToLower(m[3])]
			return
		}
	}
	if m := priceKeywordRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			v = applyMultiplier(v, m[2])
			p.Price = &v
		}
	}
}

func parseRooms(text string, p *ParsedListing) {
	m := roomsRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if v, ok := parseNumber(strings.ReplaceAll(m[1], ",", ".")); ok {
		p.Rooms = &v
	}
}

func parseArea(text string, p *ParsedListing) {
	m := areaRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if v, ok := parseNumber(strings.ReplaceAll(m[1], ",", ".")); ok {
		p.AreaM2 = &v
	}
}

func parseFloor(text string, p *ParsedListing) {
	if groundFloorRe.MatchString(text) {
		zero := 0
		p.Floor = &zero
		return
	}
	m := floorOrdinalRe.FindStringSubmatch(text)
	if m == nil {
		m = floorKeywordRe.FindStringSubmatch(text)
	}
	if m == nil {
		return
	}
	if v, err := strconv.Atoi(m[1]); err == nil {
		p.Floor = &v
	}
}

func parseAddress(text string, p *ParsedListing) {
	if m := addressLabelRe.FindStringSubmatch(text); m != nil {
		p.Address = strings.TrimSpace(m[1])
		return
	}
	if m := addressStreetRe.FindString(text); m != "" {
		p.Address = m
	}
}

func parseAmenities(text string, p *ParsedListing) {
	for _, a := range amenityWords {
		if a.re.MatchString(text) {
			p.Amenities = append(p.Amenities, a.name)
		}
	}
}
