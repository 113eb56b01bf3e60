// Package stops provides the read-only registry of known transit stops.
//
// The registry maps stop names to geographic coordinates and is used for
// report-location validation and for the dashboard map feed. It is immutable
// after construction, so it is safe for concurrent use without locking.
package stops

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrUnknownStop indicates a stop name that is not in the registry.
var ErrUnknownStop = errors.New("unknown stop")

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Stop is a named transit stop with its location.
type Stop struct {
	Name     string     `json:"name"`
	Location Coordinate `json:"location"`
}

// Registry is an immutable set of named stops.
type Registry struct {
	byName map[string]Coordinate
	names  []string // sorted, for deterministic listings and prompts
}

// New builds a registry from a name-to-coordinate map.
// Returns an error on an empty map or an empty stop name.
func New(stops map[string]Coordinate) (*Registry, error) {
	if len(stops) == 0 {
		return nil, errors.New("registry requires at least one stop")
	}

	byName := make(map[string]Coordinate, len(stops))
	names := make([]string, 0, len(stops))
	for name, coord := range stops {
		if name == "" {
			return nil, errors.New("stop name must not be empty")
		}
		byName[name] = coord
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{byName: byName, names: names}, nil
}

// Default returns the built-in Padova stop set used by the demo deployment.
func Default() *Registry {
	r, err := New(map[string]Coordinate{
		"Stazione FS":        {Lat: 45.4184, Lon: 11.8801},
		"Prato della Valle":  {Lat: 45.3989, Lon: 11.8714},
		"Basilica del Santo": {Lat: 45.4019, Lon: 11.8808},
		"Piazza delle Erbe":  {Lat: 45.4078, Lon: 11.8762},
		"Ospedale":           {Lat: 45.4109, Lon: 11.8888},
	})
	if err != nil {
		panic(err) // built-in data, cannot fail
	}
	return r
}

// LoadFile reads a registry from a JSON file of the form
// {"Stop Name": {"lat": 45.4, "lon": 11.8}, ...}.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stops file: %w", err)
	}

	var raw map[string]Coordinate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing stops file %s: %w", path, err)
	}

	r, err := New(raw)
	if err != nil {
		return nil, fmt.Errorf("stops file %s: %w", path, err)
	}
	return r, nil
}

// Lookup returns the coordinate for a stop name.
// Returns ErrUnknownStop (wrapped with the candidate name) on a miss.
func (r *Registry) Lookup(name string) (Coordinate, error) {
	coord, ok := r.byName[name]
	if !ok {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrUnknownStop, name)
	}
	return coord, nil
}

// Contains reports whether the registry knows the given stop name.
func (r *Registry) Contains(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns all stop names in sorted order.
// The returned slice is a copy and safe to retain.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every stop with its coordinate, ordered by name.
func (r *Registry) All() []Stop {
	out := make([]Stop, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, Stop{Name: name, Location: r.byName[name]})
	}
	return out
}

// Len returns the number of stops in the registry.
func (r *Registry) Len() int {
	return len(r.names)
}
