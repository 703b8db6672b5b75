// Package catalog manages the YAML table of known star clusters.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/clusterscan/pkg/units"
)

//go:embed known.yml
var builtinYAML []byte

// ErrInvalidObject is returned for catalog entries that fail validation.
var ErrInvalidObject = errors.New("invalid catalog object")

// Object is a known cluster. RA is kept as written; RADeg holds its decimal value.
type Object struct {
	Name        string  `yaml:"name" json:"name"`
	RA          string  `yaml:"ra" json:"ra"`
	Dec         float64 `yaml:"dec" json:"dec"`
	TidalRadius float64 `yaml:"tidal_radius" json:"tidal_radius_arcmin"`

	raDeg float64
}

// RADeg returns the right ascension in decimal degrees.
func (o *Object) RADeg() float64 { return o.raDeg }

// RadiusDeg returns the tidal radius in degrees.
func (o *Object) RadiusDeg() float64 { return o.TidalRadius / 60 }

// Config is the top-level YAML structure.
type Config struct {
	Objects []Object `yaml:"objects"`
}

// Registry holds loaded objects, keyed by lower-cased name.
type Registry struct {
	byName map[string]*Object
	order  []string // preserves definition order
}

// Builtin returns the embedded catalog.
func Builtin() *Registry {
	r, err := Parse(builtinYAML)
	if err != nil {
		panic("embedded catalog: " + err.Error())
	}
	return r
}

// Load returns the builtin catalog merged with the YAML file at path. Entries
// in the file replace builtin entries of the same name. A missing file or an
// empty path yields the builtin catalog alone.
func Load(path string) (*Registry, error) {
	r := Builtin()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, o := range extra.All() {
		r.put(o)
	}
	return r, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Registry, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	r := &Registry{byName: make(map[string]*Object, len(cfg.Objects))}
	for i := range cfg.Objects {
		o := &cfg.Objects[i]
		if err := o.validate(); err != nil {
			return nil, err
		}
		r.put(o)
	}
	return r, nil
}

func (o *Object) validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidObject)
	}
	ra, err := units.ParseRA(o.RA)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidObject, o.Name, err)
	}
	o.raDeg = ra
	if math.IsNaN(o.Dec) || o.Dec < -90 || o.Dec > 90 {
		return fmt.Errorf("%w: %s: dec %v out of range", ErrInvalidObject, o.Name, o.Dec)
	}
	if !(o.TidalRadius > 0) {
		return fmt.Errorf("%w: %s: tidal radius must be positive", ErrInvalidObject, o.Name)
	}
	return nil
}

func (r *Registry) put(o *Object) {
	key := strings.ToLower(o.Name)
	if _, ok := r.byName[key]; !ok {
		r.order = append(r.order, key)
	}
	r.byName[key] = o
}

// Get returns an object by name, ignoring case.
func (r *Registry) Get(name string) (*Object, bool) {
	o, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return o, ok
}

// All returns all objects in definition order.
func (r *Registry) All() []*Object {
	result := make([]*Object, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.byName[key])
	}
	return result
}

// Names returns a sorted list of object names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, key := range r.order {
		names = append(names, r.byName[key].Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of objects.
func (r *Registry) Len() int {
	return len(r.order)
}
