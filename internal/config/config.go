package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/features"
	"github.com/kozaktomas/facegate/internal/imaging"
	"github.com/kozaktomas/facegate/internal/locator"
	"github.com/kozaktomas/facegate/internal/quality"
	"github.com/kozaktomas/facegate/internal/similarity"
)

//go:embed profiles.yaml
var profilesYAML []byte

type Config struct {
	Profile  SecurityProfile
	Store    StoreConfig
	Database DatabaseConfig
	Detector DetectorConfig
	Log      LogConfig
	Server   ServerConfig
}

type StoreConfig struct {
	Backend string // memory, file or postgres (default file)
	Path    string // gob snapshot for the file backend (default facegate-profiles.gob)
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the shortlist HNSW index (optional, if empty index is rebuilt on startup)
}

type DetectorConfig struct {
	CascadePath string // pigo cascade file
	// FullFrameFallback treats the whole image as the face when the cascade
	// finds nothing or no cascade is set (default false).
	FullFrameFallback bool
	MaxImagePixels    int // decoded width*height limit (default 40 megapixels)
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // json or console (default console)
}

type ServerConfig struct {
	MaxUploadBytes int64    // largest accepted image body (default 10 MiB)
	APIKey         string   // required in X-API-Key when set
	AllowedOrigins []string // CORS origins in addition to localhost
}

// SecurityProfile parametrises one engine: extraction, quality gate,
// similarity aggregation and consensus policy.
type SecurityProfile struct {
	Name        string `yaml:"-"`
	Description string `yaml:"description"`

	Features  features.Config        `yaml:"features"`
	Quality   quality.Thresholds     `yaml:"quality"`
	Consensus consensus.Policy       `yaml:"consensus"`
	// Aggregation collapses the three metrics of a family: max, mean or a
	// metric name.
	Aggregation similarity.Aggregation `yaml:"aggregation"`
	// Padding expands the detected face box by this fraction of its shorter side.
	Padding float64 `yaml:"padding"`
	// ShortlistSize limits exhaustive scoring to the nearest identities by
	// signature when the gallery is larger. Zero scores every profile.
	ShortlistSize int `yaml:"shortlist_size"`
	// RejectDuplicates refuses enrolling a face already accepted as another identity.
	RejectDuplicates bool `yaml:"reject_duplicates"`
}

// DefaultSecurityProfile returns the built-in standard profile.
func DefaultSecurityProfile() SecurityProfile {
	return SecurityProfile{
		Name:        "standard",
		Features:    features.DefaultConfig(),
		Quality:     quality.DefaultThresholds(),
		Consensus:   consensus.DefaultPolicy(),
		Aggregation: similarity.AggregateMax,
		Padding:     locator.DefaultPadding,
	}
}

// Validate rejects inconsistent settings.
func (p SecurityProfile) Validate() error {
	if err := p.Features.Validate(); err != nil {
		return fmt.Errorf("profile %s: features: %w", p.Name, err)
	}
	if err := p.Quality.Validate(); err != nil {
		return fmt.Errorf("profile %s: quality: %w", p.Name, err)
	}
	if err := p.Consensus.Validate(); err != nil {
		return fmt.Errorf("profile %s: consensus: %w", p.Name, err)
	}
	if _, err := similarity.ParseAggregation(string(p.Aggregation)); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.Padding < 0 || p.Padding > 1 {
		return fmt.Errorf("profile %s: padding must be in [0, 1], got %v", p.Name, p.Padding)
	}
	if p.ShortlistSize < 0 {
		return fmt.Errorf("profile %s: shortlist_size must not be negative", p.Name)
	}
	if n := len(p.Features.Families); p.Consensus.MinConsensusCount > n ||
		p.Consensus.MediumCount > n || p.Consensus.HighCount > n || p.Consensus.UltraCount > n {
		return fmt.Errorf("profile %s: consensus counts exceed the %d enabled families", p.Name, n)
	}
	return nil
}

type profilesFile struct {
	Default  string               `yaml:"default"`
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// Profiles holds the named security profiles.
type Profiles struct {
	Default string
	byName  map[string]SecurityProfile
}

// Names returns the profile names in alphabetical order.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.byName))
	for n := range p.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Get returns the named profile; an empty name selects the default.
func (p *Profiles) Get(name string) (SecurityProfile, error) {
	if name == "" {
		name = p.Default
	}
	sp, ok := p.byName[name]
	if !ok {
		return SecurityProfile{}, fmt.Errorf("unknown security profile %q (have %v)", name, p.Names())
	}
	return sp, nil
}

// ParseProfiles decodes a profiles document. Each profile starts from the
// defaults and only overrides the keys it sets. base, when non-nil, supplies
// profiles that the document extends or replaces.
func ParseProfiles(data []byte, base *Profiles) (*Profiles, error) {
	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing profiles: %w", err)
	}

	out := &Profiles{byName: make(map[string]SecurityProfile)}
	if base != nil {
		out.Default = base.Default
		for n, sp := range base.byName {
			out.byName[n] = sp
		}
	}
	if doc.Default != "" {
		out.Default = doc.Default
	}

	for name, node := range doc.Profiles {
		sp, ok := out.byName[name]
		if !ok {
			sp = DefaultSecurityProfile()
		}
		if err := node.Decode(&sp); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		sp.Name = name
		if err := sp.Validate(); err != nil {
			return nil, err
		}
		out.byName[name] = sp
	}

	if len(out.byName) == 0 {
		return nil, errors.New("no security profiles defined")
	}
	if _, ok := out.byName[out.Default]; !ok {
		return nil, fmt.Errorf("default profile %q is not defined", out.Default)
	}
	return out, nil
}

// LoadProfiles returns the embedded profiles, extended by the YAML file at
// overridePath when it is non-empty.
func LoadProfiles(overridePath string) (*Profiles, error) {
	builtin, err := ParseProfiles(profilesYAML, nil)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to parse embedded profiles.yaml: " + err.Error())
	}
	if overridePath == "" {
		return builtin, nil
	}
	data, err := os.ReadFile(overridePath) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}
	return ParseProfiles(data, builtin)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool parses a boolean environment variable, falling back to the
// default when unset or unparsable.
func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load reads the configuration from the environment. The security profile
// is FACEGATE_PROFILE from the embedded profiles, optionally extended by
// FACEGATE_PROFILE_FILE.
func Load() (*Config, error) {
	profiles, err := LoadProfiles(os.Getenv("FACEGATE_PROFILE_FILE"))
	if err != nil {
		return nil, err
	}
	profile, err := profiles.Get(os.Getenv("FACEGATE_PROFILE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Profile: profile,
		Store: StoreConfig{
			Backend: envString("FACEGATE_STORE", "file"),
			Path:    envString("FACEGATE_STORE_PATH", "facegate-profiles.gob"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Detector: DetectorConfig{
			CascadePath:       os.Getenv("FACEGATE_CASCADE_PATH"),
			FullFrameFallback: envBool("FACEGATE_FULL_FRAME_FALLBACK", false),
			MaxImagePixels:    envInt("FACEGATE_MAX_IMAGE_PIXELS", imaging.DefaultMaxPixels),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
		Server: ServerConfig{
			MaxUploadBytes: int64(envInt("FACEGATE_MAX_UPLOAD_BYTES", 10<<20)),
			APIKey:         os.Getenv("FACEGATE_API_KEY"),
			AllowedOrigins: envList("FACEGATE_ALLOWED_ORIGINS"),
		},
	}, nil
}
