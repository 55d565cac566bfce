package models

// Requests for ensemble HTTP endpoints.

type WeightsRequest struct {
	Top int `query:"top" json:"top" default:"0" validate:"gte=0,lte=1000"`
}

type AnalystRequest struct {
	Name string `param:"name" json:"name" validate:"required"`
}

// InstrumentWeight is one line of the blended allocation, largest first.
type InstrumentWeight struct {
	Instrument Instrument `json:"instrument"`
	Weight     float64    `json:"weight"`
}

type WeightsResponse struct {
	Epoch      int64              `json:"epoch"`
	Weights    []InstrumentWeight `json:"weights"`
	Unassigned float64            `json:"unassigned"`
}
