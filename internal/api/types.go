package api

import (
	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/schema"
)

type MechanismSummary struct {
	ID          uint32      `json:"id"`
	Name        string      `json:"name"`
	Kind        schema.Kind `json:"kind"`
	Width       int         `json:"width"`
	WidthPadded int         `json:"width_padded"`
}

type MechanismDetail struct {
	MechanismSummary
	Parameters []string `json:"parameters"`
	State      []string `json:"state"`
	Globals    []string `json:"globals"`
	Ions       []string `json:"ions"`
}

// FieldView is a field table entry. Addr is the device address in hex.
type FieldView struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	Addr    string  `json:"addr"`
}

// GlobalView is a resolved global, overrides applied.
type GlobalView struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type FieldValues struct {
	Name   string            `json:"name"`
	Values checkpoint.Values `json:"values"`
}

type SetFieldRequest struct {
	Values []float64 `json:"values"`
}

type IonView struct {
	Name              string `json:"name"`
	Ion               string `json:"ion"`
	CurrentDensity    string `json:"current_density"`
	ReversalPotential string `json:"reversal_potential"`
	InternalConc      string `json:"internal_concentration"`
	ExternalConc      string `json:"external_concentration"`
	Charge            string `json:"charge"`
	Index             string `json:"index"`
}

type CheckpointRequest struct {
	Label string `json:"label"`
}

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func list[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Object: "list", Data: data}
}
