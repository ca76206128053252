package domain

import (
	"strings"
	"time"
)

// Column names of the geocoded master reference
const (
	ColPostal    = "POSTAL"
	ColAddress   = "ADDRESS"
	ColBlkNo     = "BLK_NO"
	ColBuilding  = "BUILDING"
	ColRoadName  = "ROAD_NAME"
	ColLatitude  = "LATITUDE"
	ColLongitude = "LONGITUDE"
	ColSource    = "SOURCE"
	ColURL       = "URL"
	ColSource2   = "SOURCE_2"
	ColURL2      = "URL_2"
)

// GeocodedColumns lists the reference columns in output order
func GeocodedColumns() []string {
	return []string{
		ColPostal, ColAddress, ColBlkNo, ColBuilding, ColRoadName,
		ColLatitude, ColLongitude, ColSource, ColURL, ColSource2, ColURL2,
	}
}

// GeocodedPostcode is one row of the master reference. Postal is the
// canonical six digit postcode and the primary key.
type GeocodedPostcode struct {
	Postal    string    `gorm:"type:char(6);primaryKey" json:"postal"`
	Address   string    `gorm:"type:text" json:"address"`
	BlkNo     string    `gorm:"type:varchar(50)" json:"blk_no"`
	Building  string    `gorm:"type:varchar(255)" json:"building"`
	RoadName  string    `gorm:"type:varchar(255)" json:"road_name"`
	Latitude  *float64  `gorm:"type:double precision" json:"latitude"`
	Longitude *float64  `gorm:"type:double precision" json:"longitude"`
	Source    string    `gorm:"type:varchar(50);index" json:"source"`
	URL       string    `gorm:"type:text" json:"url"`
	Source2   string    `gorm:"column:source_2;type:varchar(50)" json:"source_2"`
	URL2      string    `gorm:"column:url_2;type:text" json:"url_2"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (GeocodedPostcode) TableName() string {
	return "geocoded_postcodes"
}

// ToRecord converts the row into the reference table shape. Empty text
// fields become nil.
func (g GeocodedPostcode) ToRecord() Record {
	r := Record{
		ColPostal:    g.Postal,
		ColAddress:   nullableText(g.Address),
		ColBlkNo:     nullableText(g.BlkNo),
		ColBuilding:  nullableText(g.Building),
		ColRoadName:  nullableText(g.RoadName),
		ColLatitude:  nil,
		ColLongitude: nil,
		ColSource:    nullableText(g.Source),
		ColURL:       nullableText(g.URL),
		ColSource2:   nullableText(g.Source2),
		ColURL2:      nullableText(g.URL2),
	}
	if g.Latitude != nil {
		r[ColLatitude] = *g.Latitude
	}
	if g.Longitude != nil {
		r[ColLongitude] = *g.Longitude
	}
	return r
}

// GeocodedPostcodeFromRecord reads a reference row. Coordinates that do not
// parse as numbers are left nil.
func GeocodedPostcodeFromRecord(r Record) GeocodedPostcode {
	g := GeocodedPostcode{
		Postal:   strings.TrimSpace(ToText(r[ColPostal])),
		Address:  ToText(r[ColAddress]),
		BlkNo:    ToText(r[ColBlkNo]),
		Building: ToText(r[ColBuilding]),
		RoadName: ToText(r[ColRoadName]),
		Source:   ToText(r[ColSource]),
		URL:      ToText(r[ColURL]),
		Source2:  ToText(r[ColSource2]),
		URL2:     ToText(r[ColURL2]),
	}
	if lat, ok := ToNumber(r[ColLatitude]); ok {
		g.Latitude = &lat
	}
	if lon, ok := ToNumber(r[ColLongitude]); ok {
		g.Longitude = &lon
	}
	return g
}

// GeocodedTable builds a reference table from rows
func GeocodedTable(rows []GeocodedPostcode) *Table {
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = row.ToRecord()
	}
	return NewTable(GeocodedColumns(), records)
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
