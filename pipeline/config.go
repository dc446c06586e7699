package pipeline

import (
	"fmt"
	"slices"

	"wavelet-signal-go/shrink"
	"wavelet-signal-go/transform"
	"wavelet-signal-go/volatility"
	"wavelet-signal-go/wavelet"
)

// Config 描述一条去噪 pipeline（小波族 × 层数）。
type Config struct {
	Family           string            `yaml:"family"`
	Levels           int               `yaml:"levels"`
	WindowSize       int               `yaml:"windowSize"`
	Rule             string            `yaml:"rule"`             // universal, bayes, sure, hybrid_sure, none
	Mode             string            `yaml:"mode"`             // hard 或 soft
	ShrinkLevels     []int             `yaml:"shrinkLevels"`     // 需要收缩的层，空表示全部
	ReconstructLevel int               `yaml:"reconstructLevel"` // 0 为趋势，Levels 为完整重构
	Volatility       volatility.Config `yaml:"volatility"`
}

// DefaultConfig returns a db2, 3-level, 128-sample pipeline that soft-shrinks
// the finest level with the universal threshold.
func DefaultConfig() Config {
	return Config{
		Family:           string(wavelet.DB2),
		Levels:           3,
		WindowSize:       128,
		Rule:             shrink.RuleUniversal.String(),
		Mode:             shrink.Soft.String(),
		ShrinkLevels:     []int{1},
		ReconstructLevel: 3,
		Volatility:       volatility.DefaultConfig(),
	}
}

// settings is Config with names resolved.
type settings struct {
	family       wavelet.Family
	rule         shrink.Rule
	mode         shrink.Mode
	shrinkLevels []int
}

func (c Config) compile() (settings, error) {
	var s settings
	family, err := wavelet.ParseFamily(c.Family)
	if err != nil {
		return s, fmt.Errorf("%w: %w", transform.ErrConfiguration, err)
	}
	rule, err := shrink.ParseRule(c.Rule)
	if err != nil {
		return s, fmt.Errorf("%w: %w", transform.ErrConfiguration, err)
	}
	mode, err := shrink.ParseMode(c.Mode)
	if err != nil {
		return s, fmt.Errorf("%w: %w", transform.ErrConfiguration, err)
	}
	s.family, s.rule, s.mode = family, rule, mode

	if c.Levels < 1 {
		return s, fmt.Errorf("%w: levels must be >= 1, got %d", transform.ErrConfiguration, c.Levels)
	}
	bank, err := wavelet.NewFilterBank(family)
	if err != nil {
		return s, fmt.Errorf("%w: %w", transform.ErrConfiguration, err)
	}
	if need := bank.MinLength(c.Levels); c.WindowSize < need {
		return s, fmt.Errorf("%w: windowSize %d too short for %s with %d levels (need %d)",
			transform.ErrConfiguration, c.WindowSize, family, c.Levels, need)
	}
	if c.ReconstructLevel < 0 || c.ReconstructLevel > c.Levels {
		return s, fmt.Errorf("%w: reconstructLevel %d outside [0, %d]",
			transform.ErrConfiguration, c.ReconstructLevel, c.Levels)
	}
	if len(c.ShrinkLevels) == 0 {
		for l := 1; l <= c.Levels; l++ {
			s.shrinkLevels = append(s.shrinkLevels, l)
		}
	} else {
		for _, l := range c.ShrinkLevels {
			if l < 1 || l > c.Levels {
				return s, fmt.Errorf("%w: shrink level %d outside [1, %d]", transform.ErrConfiguration, l, c.Levels)
			}
		}
		s.shrinkLevels = slices.Clone(c.ShrinkLevels)
		slices.Sort(s.shrinkLevels)
		s.shrinkLevels = slices.Compact(s.shrinkLevels)
	}
	if err := c.Volatility.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks every field without building a pipeline.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}
