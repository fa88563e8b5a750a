package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/protocol"
)

//go:embed tuning.schema.json
var schemaJSON []byte

// Tuning is the immutable simulation configuration. It is built once at
// startup and passed by value into every service and actor constructor.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Parties       int   `yaml:"parties" json:"parties"`
	PartySize     int   `yaml:"party_size" json:"party_size"`
	MaxSeparation int   `yaml:"max_separation" json:"max_separation"`
	Agility       Range `yaml:"agility" json:"agility"`

	Rooms        int   `yaml:"rooms" json:"rooms"`
	RoomDistance Range `yaml:"room_distance" json:"room_distance"`
	RoomItems    Range `yaml:"room_items" json:"room_items"`

	// Seed drives museum layout and thief agility. Zero picks a
	// time-based seed in Normalize.
	Seed int64 `yaml:"seed" json:"seed"`

	ConnectTimeoutMs int `yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	HandoffRetryMs   int `yaml:"handoff_retry_ms" json:"handoff_retry_ms"`

	Log    LogSettings    `yaml:"log" json:"log"`
	Museum MuseumSettings `yaml:"museum" json:"museum"`
}

type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

type LogSettings struct {
	Path       string `yaml:"path" json:"path"`
	ColumnGap  int    `yaml:"column_gap" json:"column_gap"`
	BreakLines bool   `yaml:"break_lines" json:"break_lines"`
}

// MuseumSettings optionally pins the room layout instead of drawing it
// from the distance/items ranges.
type MuseumSettings struct {
	Layout []RoomSpec `yaml:"layout,omitempty" json:"layout,omitempty"`
}

type RoomSpec struct {
	Distance int `yaml:"distance" json:"distance"`
	Items    int `yaml:"items" json:"items"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  protocol.Version,
		Parties:          2,
		PartySize:        3,
		MaxSeparation:    3,
		Agility:          Range{Min: 2, Max: 6},
		Rooms:            5,
		RoomDistance:     Range{Min: 15, Max: 30},
		RoomItems:        Range{Min: 8, Max: 16},
		ConnectTimeoutMs: 10000,
		HandoffRetryMs:   1,
		Log: LogSettings{
			Path:      "./data/log.txt",
			ColumnGap: 3,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, t.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees json.Number values.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tuning.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return err
	}
	s, err := c.Compile("tuning.schema.json")
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fault.Configf("schema", "%v", err)
	}
	return nil
}

// Normalize fills zero values left by a partial YAML document.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.Log.Path == "" {
		t.Log.Path = d.Log.Path
	}
	if t.Log.ColumnGap <= 0 {
		t.Log.ColumnGap = d.Log.ColumnGap
	}
	if t.Seed == 0 {
		t.Seed = time.Now().UnixNano()
	}
	if len(t.Museum.Layout) > 0 {
		t.Rooms = len(t.Museum.Layout)
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.ProtocolVersion != protocol.Version:
		return fault.Configf("protocol_version", "got %q, want %q", t.ProtocolVersion, protocol.Version)
	case t.Parties < 1:
		return fault.Configf("parties", "must be >= 1 (got %d)", t.Parties)
	case t.PartySize < 1:
		return fault.Configf("party_size", "must be >= 1 (got %d)", t.PartySize)
	case t.MaxSeparation < 2:
		// With a gap of 1 a cohort can wedge itself with no legal step.
		return fault.Configf("max_separation", "must be >= 2 (got %d)", t.MaxSeparation)
	case t.Rooms < 1:
		return fault.Configf("rooms", "must be >= 1 (got %d)", t.Rooms)
	case t.ConnectTimeoutMs < 0:
		return fault.Configf("connect_timeout_ms", "must be >= 0")
	case t.HandoffRetryMs < 0:
		return fault.Configf("handoff_retry_ms", "must be >= 0")
	}
	if err := t.Agility.validate("agility", 1); err != nil {
		return err
	}
	if len(t.Museum.Layout) == 0 {
		if err := t.RoomDistance.validate("room_distance", 1); err != nil {
			return err
		}
		if err := t.RoomItems.validate("room_items", 0); err != nil {
			return err
		}
	}
	for i, r := range t.Museum.Layout {
		if r.Distance < 1 {
			return fault.Configf(fmt.Sprintf("museum.layout[%d].distance", i), "must be >= 1 (got %d)", r.Distance)
		}
		if r.Items < 0 {
			return fault.Configf(fmt.Sprintf("museum.layout[%d].items", i), "must be >= 0 (got %d)", r.Items)
		}
	}
	return nil
}

func (r Range) validate(field string, floor int) error {
	if r.Min < floor {
		return fault.Configf(field+".min", "must be >= %d (got %d)", floor, r.Min)
	}
	if r.Max < r.Min {
		return fault.Configf(field, "max %d below min %d", r.Max, r.Min)
	}
	return nil
}

// Thieves is the total actor population.
func (t Tuning) Thieves() int { return t.Parties * t.PartySize }

// Membership places thief id in its cohort.
func (t Tuning) Membership(id int) (cohort, member int) {
	return id / t.PartySize, id % t.PartySize
}

func (t Tuning) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutMs) * time.Millisecond
}

func (t Tuning) HandoffRetry() time.Duration {
	return time.Duration(t.HandoffRetryMs) * time.Millisecond
}

// Draw picks a value in [Min, Max), or Min when the range is empty.
func (r Range) Draw(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min)
}
