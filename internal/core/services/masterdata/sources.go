package masterdata

import (
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
)

// Registered source names
const (
	SourceOneMap       = "onemap"
	SourceOpenData     = "opendata"
	SourcePostcodeBase = "postcodebase"
)

const (
	oneMapURL       = "https://www.onemap.gov.sg/apidocs/search"
	oneMapURL2      = "https://github.com/xuancong84/singapore-address-heatmap/blob/master/database.csv.gz"
	openDataURL     = "https://public.opendatasoft.com/explore/dataset/geonames-postal-code/table/?refine.country_code=SG"
	postcodeBaseURL = "https://sgp.postcodebase.com/all"
)

// oneMapFormatter keeps the scraped OneMap rows and stamps the source
type oneMapFormatter struct{}

func (f *oneMapFormatter) GetName() string { return SourceOneMap }

func (f *oneMapFormatter) GetDescription() string {
	return "OneMap search scrape, the primary geocoded source"
}

func (f *oneMapFormatter) RequiredColumns() []string {
	return []string{domain.ColPostal}
}

func (f *oneMapFormatter) Format(raw *domain.Table) (*domain.Table, error) {
	out := raw.DropColumns("X", "Y")
	for _, row := range out.Rows {
		row[domain.ColPostal] = padPostal(row[domain.ColPostal])
	}
	if err := setConstant(out, domain.ColSource, "OneMap"); err != nil {
		return nil, err
	}
	if err := setConstant(out, domain.ColURL, oneMapURL); err != nil {
		return nil, err
	}
	if err := setConstant(out, domain.ColURL2, oneMapURL2); err != nil {
		return nil, err
	}
	return out, nil
}

// openDataFormatter reads the opendatasoft geonames export, which covers
// every country
type openDataFormatter struct {
	cleaner *Pipeline
}

func (f *openDataFormatter) GetName() string { return SourceOpenData }

func (f *openDataFormatter) GetDescription() string {
	return "opendatasoft geonames postal codes, Singapore rows only"
}

func (f *openDataFormatter) RequiredColumns() []string {
	return []string{"country_code", "postal_code", "place_name", "latitude", "longitude"}
}

func (f *openDataFormatter) Format(raw *domain.Table) (*domain.Table, error) {
	columns := []string{
		domain.ColAddress, domain.ColRoadName, domain.ColLatitude, domain.ColLongitude,
		domain.ColPostal, domain.ColSource, domain.ColURL,
	}
	rows := make([]domain.Record, 0, raw.Len())

	for _, row := range raw.Rows {
		if domain.ToText(row["country_code"]) != "SG" {
			continue
		}

		postal := padPostal(row["postal_code"])
		out := domain.Record{
			domain.ColAddress:   nil,
			domain.ColRoadName:  nil,
			domain.ColLatitude:  toFloat(row["latitude"]),
			domain.ColLongitude: toFloat(row["longitude"]),
			domain.ColPostal:    postal,
			domain.ColSource:    "opendatasoft",
			domain.ColURL:       openDataURL,
		}
		if !domain.IsNull(row["place_name"]) {
			road := f.cleaner.CleanText(domain.ToText(row["place_name"]))
			out[domain.ColRoadName] = road
			out[domain.ColAddress] = withPostal(road, postal)
		}
		rows = append(rows, out)
	}
	return domain.NewTable(columns, rows), nil
}

// postcodeBaseFormatter reads the PostcodeBase scrape, which has addresses
// but no coordinates
type postcodeBaseFormatter struct {
	cleaner *Pipeline
}

func (f *postcodeBaseFormatter) GetName() string { return SourcePostcodeBase }

func (f *postcodeBaseFormatter) GetDescription() string {
	return "PostcodeBase address listing, used to enrich opendatasoft rows"
}

func (f *postcodeBaseFormatter) RequiredColumns() []string {
	return []string{"address", "postcode"}
}

func (f *postcodeBaseFormatter) Format(raw *domain.Table) (*domain.Table, error) {
	columns := []string{domain.ColAddress, domain.ColPostal, domain.ColSource, domain.ColURL}
	rows := make([]domain.Record, 0, raw.Len())

	for _, row := range raw.Rows {
		postal := padPostal(row["postcode"])
		out := domain.Record{
			domain.ColAddress: nil,
			domain.ColPostal:  postal,
			domain.ColSource:  "Postcodebase",
			domain.ColURL:     postcodeBaseURL,
		}
		if !domain.IsNull(row["address"]) {
			out[domain.ColAddress] = withPostal(f.cleaner.CleanText(domain.ToText(row["address"])), postal)
		}
		rows = append(rows, out)
	}
	return domain.NewTable(columns, rows), nil
}

func padPostal(v interface{}) interface{} {
	key, ok := reference.CanonicalKey(v)
	if !ok {
		return nil
	}
	return key
}

func withPostal(address string, postal interface{}) string {
	if postal == nil {
		return address + " SINGAPORE"
	}
	return address + " SINGAPORE " + postal.(string)
}

func toFloat(v interface{}) interface{} {
	if f, ok := domain.ToNumber(v); ok {
		return f
	}
	return nil
}

func setConstant(t *domain.Table, column string, value interface{}) error {
	values := make([]interface{}, t.Len())
	for i := range values {
		values[i] = value
	}
	return t.SetColumn(column, values)
}
