package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"formfill/internal/logging"
)

const (
	FileName            = "formfill.yml"
	DefaultAddr         = "127.0.0.1:8080"
	DefaultBasePath     = "/v0"
	DefaultFetchTimeout = 30 * time.Second
)

// Config models formfill.yml.
type Config struct {
	Templates map[string]Template `yaml:"templates"`
	Server    struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Fetch struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	// PDF configures the pdfcpu backend. ConfigDir is relative to the
	// workspace; empty means the workspace's .formfill directory.
	PDF struct {
		ConfigDir        string `yaml:"config_dir"`
		DisableConfigDir bool   `yaml:"disable_config_dir"`
	} `yaml:"pdf"`
}

// Template describes one fillable form. Mapping and Catalog are file paths
// relative to the workspace; empty means the embedded KYC defaults.
type Template struct {
	URL      string `yaml:"url"`
	FormName string `yaml:"form_name"`
	Mapping  string `yaml:"mapping"`
	Catalog  string `yaml:"catalog"`
	Deliver  bool   `yaml:"deliver"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with formfill config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Templates) == 0 {
		return fmt.Errorf("config.templates must define at least one template")
	}
	for _, name := range c.TemplateNames() {
		t := c.Templates[name]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.templates contains empty template name")
		}
		if strings.TrimSpace(t.URL) == "" {
			return fmt.Errorf("template %s: url is required", name)
		}
		if strings.TrimSpace(t.FormName) == "" {
			return fmt.Errorf("template %s: form_name is required", name)
		}
		if strings.ContainsAny(t.FormName, `/\`) {
			return fmt.Errorf("template %s: form_name must not contain path separators", name)
		}
	}
	if c.PDF.DisableConfigDir && c.PDF.ConfigDir != "" {
		return fmt.Errorf("config.pdf: config_dir and disable_config_dir are mutually exclusive")
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("config.fetch.timeout must not be negative")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
}

// TemplateNames returns template names in sorted order.
func (c *Config) TemplateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePath makes a template-relative file path absolute against workspace.
func ResolvePath(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, p)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML for a template served at url.
func GenerateDefault(url string) string {
	return fmt.Sprintf(defaultTemplate, url)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `templates:
  kyc:
    url: %q
    form_name: KYC
    # mapping: mappings/kyc.yml   # defaults to the built-in KYC table
    # catalog: mappings/kyc_widgets.yml
    deliver: true

server:
  addr: 127.0.0.1:8080
  base_path: /v0

fetch:
  timeout: 30s

log:
  level: info
  format: text

# pdfcpu keeps config.yml and the fonts used to render locked fields here.
# pdf:
#   config_dir: .formfill
#   disable_config_dir: false
`
