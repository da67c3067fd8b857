package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrConfig marks unrecoverable input problems: bad shapes, missing
// files, unmatched species. Stages fail fast on it before any job is
// submitted.
var ErrConfig = errors.New("invalid configuration")

// Kind selects the calculation template dispatched for a job. forces
// is the ground-state run used by the stability stage; the others are
// the sweep property calculations.
type Kind int

const (
	Forces Kind = iota
	Energy
	Piezo
	Flexo
)

func (k Kind) String() string {
	return []string{"forces", "energy", "piezo", "flexo"}[k]
}

// Config holds the validated run parameters, resolved once per run
// from the input file.
type Config struct {
	StructFile string  // crystal structure file
	BasisFile  string  // symmetry-adapted basis file
	Struct     string  // inline structure block, used when StructFile is empty
	Basis      string  // inline basis block, used when BasisFile is empty
	DispMag    float64 // finite-difference displacement magnitude (Ang)
	Threshold  float64 // instability threshold (cm-1, negative)
	MinAmp     float64 // sweep start amplitude
	MaxAmp     float64 // sweep end amplitude
	NumPoints  int     // sweep points, inclusive of both ends
	Kind       Kind    // sweep calculation kind
	SleepInt   int     // scheduler poll interval in seconds
	Stabilize  bool    // apply conditioning to the force-constant matrix
	CondLimit  float64 // condition number warning threshold
	Epsilon    float64 // stabilization diagonal blend
	Alpha      float64 // stabilization symmetrization blend
	WorkQueue  string  // scheduler partition
	NumCPUs    int
	Mem        string
}

// NewConfig returns a Config with the documented defaults
func NewConfig() Config {
	return Config{
		DispMag:   0.001,
		Threshold: -20,
		MinAmp:    0,
		MaxAmp:    0.5,
		NumPoints: 11,
		Kind:      Energy,
		SleepInt:  60,
		CondLimit: 1e5,
		Epsilon:   1e-12,
		Alpha:     0.001,
		NumCPUs:   8,
		Mem:       "8gb",
	}
}

type keyword struct {
	re      *regexp.Regexp
	extract func(*Config, string) error
}

func str(dst *string) func(*Config, string) error {
	return func(_ *Config, val string) error {
		*dst = val
		return nil
	}
}

var kwerr = func(key, val string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", ErrConfig, key, val, err)
}

// keywords maps infile keys onto Config fields. To add a keyword, add
// an entry here and a field on Config.
func keywords(c *Config) []keyword {
	flt := func(dst *float64) func(*Config, string) error {
		return func(_ *Config, val string) error {
			v, err := strconv.ParseFloat(val, 64)
			*dst = v
			return err
		}
	}
	it := func(dst *int) func(*Config, string) error {
		return func(_ *Config, val string) error {
			v, err := strconv.Atoi(val)
			*dst = v
			return err
		}
	}
	return []keyword{
		{regexp.MustCompile(`(?i)^struct=`), str(&c.StructFile)},
		{regexp.MustCompile(`(?i)^basis=`), str(&c.BasisFile)},
		{regexp.MustCompile(`(?i)^dispmag=`), flt(&c.DispMag)},
		{regexp.MustCompile(`(?i)^threshold=`), flt(&c.Threshold)},
		{regexp.MustCompile(`(?i)^minamp=`), flt(&c.MinAmp)},
		{regexp.MustCompile(`(?i)^maxamp=`), flt(&c.MaxAmp)},
		{regexp.MustCompile(`(?i)^numpoints=`), it(&c.NumPoints)},
		{regexp.MustCompile(`(?i)^sleepint=`), it(&c.SleepInt)},
		{regexp.MustCompile(`(?i)^condlimit=`), flt(&c.CondLimit)},
		{regexp.MustCompile(`(?i)^epsilon=`), flt(&c.Epsilon)},
		{regexp.MustCompile(`(?i)^alpha=`), flt(&c.Alpha)},
		{regexp.MustCompile(`(?i)^queue=`), str(&c.WorkQueue)},
		{regexp.MustCompile(`(?i)^mem=`), str(&c.Mem)},
		{regexp.MustCompile(`(?i)^ncpus=`), it(&c.NumCPUs)},
		{regexp.MustCompile(`(?i)^stabilize=`), func(c *Config, val string) error {
			v, err := strconv.ParseBool(val)
			c.Stabilize = v
			return err
		}},
		{regexp.MustCompile(`(?i)^kind=`), func(c *Config, val string) error {
			switch strings.ToLower(val) {
			case "energy":
				c.Kind = Energy
			case "piezo":
				c.Kind = Piezo
			case "flexo":
				c.Kind = Flexo
			default:
				return fmt.Errorf("unknown kind %q", val)
			}
			return nil
		}},
	}
}

// setBlock stores the body of a multiline keyword block. The
// structure and basis can be given inline instead of by filename.
func (c *Config) setBlock(key, body string) error {
	switch strings.ToLower(key) {
	case "struct":
		c.Struct = body
	case "basis":
		c.Basis = body
	default:
		return fmt.Errorf("%w: unrecognized block %q", ErrConfig, key)
	}
	return nil
}

// ParseInfile parses the input file specified by filename into a
// Config, starting from the defaults. Entries are key=value lines,
// except that struct and basis may instead open a key={ block whose
// lines are taken verbatim until the closing }.
func ParseInfile(filename string) (Config, error) {
	c := NewConfig()
	lines, err := ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	kws := keywords(&c)
	var (
		block    strings.Builder
		blockKey string
		inblock  bool
	)
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "#"):
		case inblock && strings.Contains(line, "}"):
			inblock = false
			if err := c.setBlock(blockKey, block.String()); err != nil {
				return c, err
			}
			block.Reset()
		case strings.Contains(line, "{"):
			blockKey = strings.TrimSpace(strings.TrimRight(
				strings.SplitN(line, "{", 2)[0], "= \t"))
			inblock = true
		case inblock:
			block.WriteString(line + "\n")
		default:
			matched := false
			for _, kw := range kws {
				if kw.re.MatchString(line) {
					val := strings.TrimSpace(
						strings.SplitN(line, "=", 2)[1])
					key := strings.SplitN(line, "=", 2)[0]
					if err := kw.extract(&c, val); err != nil {
						return c, kwerr(key, val, err)
					}
					matched = true
					break
				}
			}
			if !matched {
				return c, fmt.Errorf("%w: unrecognized input line %q",
					ErrConfig, line)
			}
		}
	}
	if inblock {
		return c, fmt.Errorf("%w: unterminated %s block",
			ErrConfig, blockKey)
	}
	return c, c.Validate()
}

// Validate checks the shape constraints that must hold before any job
// is submitted
func (c *Config) Validate() error {
	switch {
	case c.StructFile == "" && c.Struct == "":
		return fmt.Errorf("%w: no structure given", ErrConfig)
	case c.BasisFile == "" && c.Basis == "":
		return fmt.Errorf("%w: no basis given", ErrConfig)
	case c.DispMag <= 0:
		return fmt.Errorf("%w: dispmag must be positive, got %g",
			ErrConfig, c.DispMag)
	case c.NumPoints < 2:
		return fmt.Errorf("%w: numpoints must be at least 2, got %d",
			ErrConfig, c.NumPoints)
	case c.MaxAmp <= c.MinAmp:
		return fmt.Errorf("%w: maxamp %g not greater than minamp %g",
			ErrConfig, c.MaxAmp, c.MinAmp)
	case c.Threshold >= 0:
		return fmt.Errorf("%w: threshold must be negative, got %g",
			ErrConfig, c.Threshold)
	case c.SleepInt <= 0:
		return fmt.Errorf("%w: sleepint must be positive, got %d",
			ErrConfig, c.SleepInt)
	case c.CondLimit <= 0:
		return fmt.Errorf("%w: condlimit must be positive, got %g",
			ErrConfig, c.CondLimit)
	}
	return nil
}
