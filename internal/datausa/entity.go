package datausa

// State is one entry of the geography listing.
type State struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TradeRecord is one origin -> destination state flow.
type TradeRecord struct {
	Origin            string  `json:"Origin"`
	OriginID          string  `json:"ID Origin"`
	DestinationState  string  `json:"Destination State"`
	DestinationID     string  `json:"ID Destination State"`
	MillionsOfDollars float64 `json:"Millions Of Dollars"`
	ThousandsOfTons   float64 `json:"Thousands Of Tons"`
}

// EmploymentRecord is one industry group of a state.
type EmploymentRecord struct {
	IndustryGroup   string  `json:"Industry Group"`
	TotalPopulation float64 `json:"Total Population"`
	AverageWage     float64 `json:"Average Wage"`
	Geography       string  `json:"Geography"`
}

// ProductionRecord is one SCTG2 production type leaving a state.
type ProductionRecord struct {
	SCTG2             string  `json:"SCTG2"`
	Origin            string  `json:"Origin"`
	MillionsOfDollars float64 `json:"Millions Of Dollars"`
	ThousandsOfTons   float64 `json:"Thousands Of Tons"`
}
