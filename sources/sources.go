/*
Package sources loads the feed and target configuration file.

The file lists every syndication feed with its extraction selectors and
publishing defaults, and the WordPress sites ("domains") content is republished
to. A Snapshot is immutable; cycles load a fresh one on every run so edits to
the file are picked up without a restart.
*/
package sources

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Nexora-Open-Source/feed-republisher/types"
	"gopkg.in/yaml.v3"
)

const (
	defaultStatus   = "publish"
	defaultCategory = "uncategorized"
)

// File is the on-disk layout. JSON files parse too, since JSON is valid YAML.
type File struct {
	Sources []Source `yaml:"sources" json:"sources"`
}

// Source is one syndication feed and its publishing settings.
type Source struct {
	RSSURL                string   `yaml:"rss_url" json:"rss_url"`
	TitleSelector         string   `yaml:"title_selector" json:"title_selector"`
	ContentSelector       string   `yaml:"content_selector" json:"content_selector"`
	TimeSelector          string   `yaml:"time_selector" json:"time_selector"`
	FeaturedImageSelector string   `yaml:"featured_image_selector" json:"featured_image_selector"`
	DefaultCategories     []string `yaml:"default_categories" json:"default_categories"`
	DefaultTags           []string `yaml:"default_tags" json:"default_tags"`
	DefaultStatus         string   `yaml:"default_status" json:"default_status"`
	Domains               []Domain `yaml:"domains" json:"domains"`
}

// Domain is one WordPress site.
type Domain struct {
	BaseURL             string `yaml:"base_url" json:"base_url"`
	Username            string `yaml:"username" json:"username"`
	ApplicationPassword string `yaml:"application_password" json:"application_password"`
	Category            string `yaml:"category" json:"category"`
}

// Selectors returns the extraction selectors of the source.
func (s Source) Selectors() types.Selectors {
	return types.Selectors{
		Title:         s.TitleSelector,
		Content:       s.ContentSelector,
		Time:          s.TimeSelector,
		FeaturedImage: s.FeaturedImageSelector,
	}
}

// Defaults returns the post defaults of the source.
func (s Source) Defaults() types.PostDefaults {
	status := s.DefaultStatus
	if status == "" {
		status = defaultStatus
	}
	return types.PostDefaults{
		Categories: append([]string(nil), s.DefaultCategories...),
		Tags:       append([]string(nil), s.DefaultTags...),
		Status:     status,
	}
}

// Target converts a domain into a publish target.
func (d Domain) Target() types.Target {
	category := d.Category
	if category == "" {
		category = defaultCategory
	}
	return types.Target{
		BaseURL:  d.BaseURL,
		Username: d.Username,
		Password: d.ApplicationPassword,
		Category: category,
	}
}

// Validate checks the required fields of every source and domain.
func (f *File) Validate() error {
	if len(f.Sources) == 0 {
		return fmt.Errorf("sources missing")
	}
	for i, src := range f.Sources {
		if strings.TrimSpace(src.RSSURL) == "" {
			return fmt.Errorf("source %d: rss_url missing", i)
		}
		if len(src.Domains) == 0 {
			return fmt.Errorf("source %s: domains missing", src.RSSURL)
		}
		for j, d := range src.Domains {
			switch {
			case d.BaseURL == "":
				return fmt.Errorf("source %s domain %d: base_url missing", src.RSSURL, j)
			case d.Username == "":
				return fmt.Errorf("source %s domain %s: username missing", src.RSSURL, d.BaseURL)
			case d.ApplicationPassword == "":
				return fmt.Errorf("source %s domain %s: application_password missing", src.RSSURL, d.BaseURL)
			}
			if u, err := url.Parse(d.BaseURL); err != nil || u.Host == "" {
				return fmt.Errorf("source %s domain %s: base_url is not an absolute URL", src.RSSURL, d.BaseURL)
			}
		}
	}
	return nil
}

// Snapshot is an immutable view of the sources file.
type Snapshot struct {
	sources []Source
	byFeed  map[string]int
	targets []types.Target
}

// NewSnapshot validates f and indexes it.
func NewSnapshot(f *File) (*Snapshot, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		sources: append([]Source(nil), f.Sources...),
		byFeed:  make(map[string]int, len(f.Sources)),
	}
	seen := make(map[string]bool)
	for i, src := range s.sources {
		if _, dup := s.byFeed[src.RSSURL]; !dup {
			s.byFeed[src.RSSURL] = i
		}
		// Every item goes to every configured site; the first declaration of a site wins.
		for _, d := range src.Domains {
			key := strings.TrimRight(d.BaseURL, "/")
			if seen[key] {
				continue
			}
			seen[key] = true
			s.targets = append(s.targets, d.Target())
		}
	}
	return s, nil
}

// Parse decodes and validates a sources document.
func Parse(data []byte) (*Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return NewSnapshot(&f)
}

// Sources returns the configured feeds.
func (s *Snapshot) Sources() []Source {
	return append([]Source(nil), s.sources...)
}

// Source returns the settings of the feed with the given URL.
func (s *Snapshot) Source(feedURL string) (Source, bool) {
	i, ok := s.byFeed[feedURL]
	if !ok {
		return Source{}, false
	}
	return s.sources[i], true
}

// Targets returns every configured publish target, deduplicated by base URL.
func (s *Snapshot) Targets() []types.Target {
	return append([]types.Target(nil), s.targets...)
}

// Loader produces configuration snapshots.
type Loader interface {
	Load() (*Snapshot, error)
}

// FileLoader reads the sources file from disk on every Load.
type FileLoader struct {
	Path string
}

// NewFileLoader creates a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

// Load reads and validates the file.
func (l *FileLoader) Load() (*Snapshot, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", l.Path, err)
	}
	return Parse(data)
}

// StaticLoader always returns the same snapshot.
type StaticLoader struct {
	Snapshot *Snapshot
}

// Load returns the wrapped snapshot.
func (l StaticLoader) Load() (*Snapshot, error) {
	if l.Snapshot == nil {
		return nil, fmt.Errorf("no sources snapshot configured")
	}
	return l.Snapshot, nil
}
