package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "BIOSIM_HOME"

// ErrProfileNotFound is returned for an unknown engine profile.
var ErrProfileNotFound = errors.New("engine profile not found")

// Profile names an engine installation: which engine it drives, the binary
// to run and the default compute platform
type Profile struct {
	Name       string `yaml:"name"`
	Engine     string `yaml:"engine"`
	Executable string `yaml:"executable,omitempty"`
	Platform   string `yaml:"platform,omitempty"`
}

// Profiles holds the engine profiles
type Profiles struct {
	Profiles []Profile `yaml:"profiles"`
	Default  string    `yaml:"default,omitempty"`
}

// Dir returns the configuration directory, $BIOSIM_HOME or ~/.biosim
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".biosim"), nil
}

func profilesPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "engines.yaml"), nil
}

// LoadProfiles loads engine profiles from the default location
func LoadProfiles() (*Profiles, error) {
	path, err := profilesPath()
	if err != nil {
		return nil, err
	}
	return LoadProfilesFromFile(path)
}

// LoadProfilesFromFile loads engine profiles from a specific file
func LoadProfilesFromFile(path string) (*Profiles, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultProfiles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &profiles, nil
}

// SaveProfiles saves the engine profiles to the default location
func SaveProfiles(profiles *Profiles) error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	return SaveProfilesToFile(profiles, path)
}

// SaveProfilesToFile saves the engine profiles to path
func SaveProfilesToFile(profiles *Profiles, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Find returns the profile with the given name
func (p *Profiles) Find(name string) (Profile, error) {
	for _, prof := range p.Profiles {
		if prof.Name == name {
			return prof, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// Add appends a profile, rejecting duplicate names
func (p *Profiles) Add(prof Profile) error {
	if prof.Name == "" || prof.Engine == "" {
		return fmt.Errorf("profile needs a name and an engine")
	}
	if _, err := p.Find(prof.Name); err == nil {
		return fmt.Errorf("profile %s already exists", prof.Name)
	}
	p.Profiles = append(p.Profiles, prof)
	sort.Slice(p.Profiles, func(i, j int) bool { return p.Profiles[i].Name < p.Profiles[j].Name })
	return nil
}

// Remove deletes the profile with the given name
func (p *Profiles) Remove(name string) error {
	kept := make([]Profile, 0, len(p.Profiles))
	for _, prof := range p.Profiles {
		if prof.Name != name {
			kept = append(kept, prof)
		}
	}
	if len(kept) == len(p.Profiles) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	p.Profiles = kept
	if p.Default == name {
		p.Default = ""
	}
	return nil
}

// defaultProfiles returns one profile per built-in engine, using the
// engine's own binary lookup
func defaultProfiles() *Profiles {
	return &Profiles{
		Profiles: []Profile{
			{Name: "amber", Engine: "amber"},
			{Name: "gromacs", Engine: "gromacs"},
			{Name: "somd", Engine: "somd", Platform: "CPU"},
		},
		Default: "somd",
	}
}
