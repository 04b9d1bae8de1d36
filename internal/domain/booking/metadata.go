package booking

import "time"

// MetadataDocument is the public JSON document served at a token's URI.
type MetadataDocument struct {
	Name       string              `json:"name"`
	Symbol     string              `json:"symbol"`
	Attributes []MetadataAttribute `json:"attributes"`
	Properties MetadataProperties  `json:"properties"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type MetadataProperties struct {
	Mint     string `json:"mint"`
	Category string `json:"category"`
}

func (m TokenMetadata) Document() MetadataDocument {
	return MetadataDocument{
		Name:   m.Name,
		Symbol: m.Symbol,
		Attributes: []MetadataAttribute{
			{TraitType: "experience", Value: m.Experience},
			{TraitType: "start_time", Value: m.StartTime.UTC().Format(time.RFC3339)},
			{TraitType: "end_time", Value: m.EndTime.UTC().Format(time.RFC3339)},
		},
		Properties: MetadataProperties{Mint: m.Mint, Category: "reservation"},
	}
}
