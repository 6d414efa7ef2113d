package models

import (
	"encoding/json"
	"testing"
)

func TestShapeJSONCarriesType(t *testing.T) {
	base := ShapeBase{ID: "s", Scale: UnitScale, Color: "#ff0000"}
	shapes := []Shape{
		&Box{ShapeBase: base, Width: 2, Height: 3, Depth: 4},
		&Cylinder{ShapeBase: base, Radius: 1, Height: 5},
		&Prism{ShapeBase: base, Points: []LocalPoint{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 0, Z: 1}}, Height: 6},
	}

	for _, s := range shapes {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %s: %v", s.Kind(), err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["type"] != string(s.Kind()) {
			t.Errorf("%s: type = %v", s.Kind(), got["type"])
		}
		if got["id"] != "s" || got["height"] == nil {
			t.Errorf("%s: fields lost: %s", s.Kind(), data)
		}
	}
}
