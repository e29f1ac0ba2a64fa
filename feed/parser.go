package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"golang.org/x/net/html/charset"
)

// List is the vendor feed document: a root <list> of repeated <property>
// entries. Any other root element is a parse failure.
type List struct {
	XMLName    xml.Name   `xml:"list"`
	Properties []Property `xml:"property"`
}

// Property is one raw feed entry. Every leaf is a Value because the vendor
// emits fields as scalars or single-element repeats interchangeably.
type Property struct {
	Reference        Value   `xml:"reference_number"`
	OfferingType     Value   `xml:"offering_type"`
	TypeCode         Value   `xml:"property_type"`
	City             Value   `xml:"city"`
	Community        Value   `xml:"community"`
	SubCommunity     Value   `xml:"sub_community"`
	Country          Value   `xml:"country"`
	PropertyName     Value   `xml:"property_name"`
	Title            Value   `xml:"title_en"`
	Description      Value   `xml:"description_en"`
	Bedroom          Value   `xml:"bedroom"`
	Bathroom         Value   `xml:"bathroom"`
	Size             Value   `xml:"size"`
	BuiltUpArea      Value   `xml:"built_up_area"`
	PrivateAmenities Value   `xml:"private_amenities"`
	Furnished        Value   `xml:"furnished"`
	CompletionStatus Value   `xml:"completion_status"`
	Prices           []Price `xml:"price"`
	Photos           []Photo `xml:"photo"`
	Agents           []Agent `xml:"agent"`
}

type Price struct {
	Yearly Value `xml:"yearly"`
}

type Photo struct {
	URL Value `xml:"url"`
}

type Agent struct {
	ID   Value `xml:"id"`
	Name Value `xml:"name"`
}

// PriceYearly returns the yearly price field of the first price block.
func (p Property) PriceYearly() Value {
	if len(p.Prices) == 0 {
		return nil
	}
	return p.Prices[0].Yearly
}

// PhotoURLs returns every photo URL in document order.
func (p Property) PhotoURLs() []string {
	var urls []string
	for _, ph := range p.Photos {
		urls = append(urls, ph.URL...)
	}
	return urls
}

// Parse decodes a vendor feed document. The decoder honors the document's
// declared charset; vendor exports are not always UTF-8.
func Parse(data []byte) (*List, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	var list List
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &list, nil
}
