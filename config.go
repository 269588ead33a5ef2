package fwsnd

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/pkg/errors"
)

type Config struct {
	Device  string `hcl:"device"`
	Kind    string `hcl:"kind,optional"`
	Timeout string `hcl:"timeout,optional"`

	Quirks *struct {
		EfwResponseShortfall *int `hcl:"efw_response_shortfall,optional"`
	} `hcl:"quirks,block"`

	NATS *struct {
		URL string `hcl:"url"`
		ID  string `hcl:"id,optional"`
	} `hcl:"nats,block"`

	Metrics *struct {
		Addr string `hcl:"addr"`
	} `hcl:"metrics,block"`
}

func LoadConfig(path string) (*Config, error) {
	var (
		ctx hcl.EvalContext
		cfg Config
	)

	err := hclsimple.DecodeFile(path, &ctx, &cfg)
	if err != nil {
		return nil, err
	}

	if _, err := cfg.Options(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	return &cfg, nil
}

// ExpectedKind returns the configured device kind, or zero when any kind
// is accepted.
func (c *Config) ExpectedKind() (hwdep.Kind, error) {
	if c.Kind == "" {
		return 0, nil
	}

	return hwdep.ParseKind(c.Kind)
}

// Options converts the configuration into unit options.
func (c *Config) Options() ([]Option, error) {
	var options []Option

	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "timeout")
		}

		if d <= 0 {
			return nil, errors.Errorf("timeout must be positive, got %s", d)
		}

		options = append(options, WithTimeout(d))
	}

	if c.Quirks != nil && c.Quirks.EfwResponseShortfall != nil {
		n := *c.Quirks.EfwResponseShortfall
		if n < 0 {
			return nil, errors.Errorf("efw_response_shortfall must not be negative, got %d", n)
		}

		options = append(options, WithQuirks(Quirks{EfwResponseShortfall: n}))
	}

	if _, err := c.ExpectedKind(); err != nil {
		return nil, err
	}

	return options, nil
}
