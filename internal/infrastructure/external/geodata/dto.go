package geodata

// CountryDTO is one element of the RestCountries v3.1 response. Only the
// fields requested through the fields= filter are decoded.
type CountryDTO struct {
	CCA2 string `json:"cca2"`

	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`

	IDD struct {
		Root     string   `json:"root"`
		Suffixes []string `json:"suffixes"`
	} `json:"idd"`

	Region     string `json:"region"`
	Subregion  string `json:"subregion"`
	Population int64  `json:"population"`

	Flags struct {
		PNG string `json:"png"`
		SVG string `json:"svg"`
	} `json:"flags"`

	// Currencies is keyed by ISO 4217 code.
	Currencies map[string]CurrencyDTO `json:"currencies"`

	Timezones []string `json:"timezones"`
}

// CurrencyDTO describes one currency of a country.
type CurrencyDTO struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// PlaceDTO is one Nominatim search hit. Coordinates arrive as strings.
type PlaceDTO struct {
	PlaceID     int64             `json:"place_id"`
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Address     map[string]string `json:"address,omitempty"`
}
