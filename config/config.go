// Package config parses the metric-selection configuration file (spec.md
// C6, §6): a whitespace-separated token stream with `#`-to-end-of-line
// comments, naming the save file, optional text-dump header/trailer, the
// replication bounds, and the averaged/distribution metric descriptors
// consulted during ingestion and stop-condition checking.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownToken is returned when a directive token is not one of the
// recognised keywords.
var ErrUnknownToken = errors.New("config: unknown token")

// ErrMissingArgument is returned when a directive runs out of tokens
// before its required arguments are satisfied.
var ErrMissingArgument = errors.New("config: missing argument")

// ErrDescriptorNeedsOutOrCheck is returned when an `s` or `d` descriptor
// carries neither an `out` nor a `check` clause.
var ErrDescriptorNeedsOutOrCheck = errors.New("config: descriptor requires out or check")

// ErrInvalidSubMetric is returned when a `d` descriptor's sub field is not
// one of pmf, cdf, mean, median, q95, q99.
var ErrInvalidSubMetric = errors.New("config: invalid sub-metric")

// subMetrics is the fixed set of distribution sub-metric names.
var subMetrics = map[string]bool{
	"pmf": true, "cdf": true, "mean": true,
	"median": true, "q95": true, "q99": true,
}

// AvgDescriptor selects one averaged metric/index pair for output and/or
// the stop-condition check.
type AvgDescriptor struct {
	Name   string
	Idx    uint32
	Output bool
	OutCL  float64

	Check     bool
	CheckCL   float64
	Threshold float64
}

// DistDescriptor selects one distribution metric/index/sub-metric triple
// for output and/or the stop-condition check.
type DistDescriptor struct {
	Name string
	Idx  uint32
	Sub  string

	Output bool
	OutCL  float64

	Check     bool
	CheckCL   float64
	Threshold float64
}

// Config is the fully-parsed metric-selection configuration.
type Config struct {
	SavePath    string
	HeaderPath  string
	TrailerPath string
	MinRuns     uint32
	MaxRuns     uint32

	avg map[string][]*AvgDescriptor
	dst map[string][]*DistDescriptor
}

// New returns an empty Config.
func New() *Config {
	return &Config{
		avg: make(map[string][]*AvgDescriptor),
		dst: make(map[string][]*DistDescriptor),
	}
}

// GetDescAvg returns the averaged descriptor for name/idx, if any.
func (c *Config) GetDescAvg(name string, idx uint32) (*AvgDescriptor, bool) {
	for _, d := range c.avg[name] {
		if d.Idx == idx {
			return d, true
		}
	}
	return nil, false
}

// GetDescDst returns the distribution descriptor for name/idx/sub, if any.
func (c *Config) GetDescDst(name string, idx uint32, sub string) (*DistDescriptor, bool) {
	for _, d := range c.dst[name] {
		if d.Idx == idx && d.Sub == sub {
			return d, true
		}
	}
	return nil, false
}

// AvgDescriptors returns every averaged descriptor for name.
func (c *Config) AvgDescriptors(name string) []*AvgDescriptor {
	return c.avg[name]
}

// DistDescriptors returns every distribution descriptor for name.
func (c *Config) DistDescriptors(name string) []*DistDescriptor {
	return c.dst[name]
}

// DistRelevant reports whether any sub-metric descriptor exists for
// name/idx. A raw bin sample read off the wire feeds the shared pmf/cdf
// grid that every one of the six sub-metrics is derived from, so it is
// worth ingesting as soon as at least one of them is configured.
func (c *Config) DistRelevant(name string, idx uint32) bool {
	for _, sub := range []string{"pmf", "cdf", "mean", "median", "q95", "q99"} {
		if _, ok := c.GetDescDst(name, idx, sub); ok {
			return true
		}
	}
	return false
}

// MetricNames returns the union of averaged and distribution metric names
// appearing in the configuration, in sorted order.
func (c *Config) MetricNames() []string {
	seen := make(map[string]bool)
	for name := range c.avg {
		seen[name] = true
	}
	for name := range c.dst {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the configuration DSL from r.
func Parse(r io.Reader) (*Config, error) {
	tokens, err := tokenize(r)
	if err != nil {
		return nil, err
	}
	p := &tokenParser{tokens: tokens}
	cfg := New()

	for {
		tok, ok := p.next()
		if !ok {
			break
		}
		switch tok {
		case "save":
			cfg.SavePath, err = p.mustString("save")
		case "header":
			cfg.HeaderPath, err = p.mustString("header")
		case "trailer":
			cfg.TrailerPath, err = p.mustString("trailer")
		case "minruns":
			cfg.MinRuns, err = p.mustUint("minruns")
		case "maxruns":
			cfg.MaxRuns, err = p.mustUint("maxruns")
		case "s":
			err = parseAvg(p, cfg)
		case "d":
			err = parseDist(p, cfg)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownToken, tok)
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseAvg(p *tokenParser, cfg *Config) error {
	name, err := p.mustString("s name")
	if err != nil {
		return err
	}
	idx, err := p.mustUint("s idx")
	if err != nil {
		return err
	}
	d := &AvgDescriptor{Name: name, Idx: idx}
	if err := parseOutCheck(p, &d.Output, &d.OutCL, &d.Check, &d.CheckCL, &d.Threshold); err != nil {
		return err
	}
	if !d.Output && !d.Check {
		return ErrDescriptorNeedsOutOrCheck
	}
	cfg.avg[name] = append(cfg.avg[name], d)
	return nil
}

func parseDist(p *tokenParser, cfg *Config) error {
	name, err := p.mustString("d name")
	if err != nil {
		return err
	}
	idx, err := p.mustUint("d idx")
	if err != nil {
		return err
	}
	sub, err := p.mustString("d sub")
	if err != nil {
		return err
	}
	if !subMetrics[sub] {
		return fmt.Errorf("%w: %q", ErrInvalidSubMetric, sub)
	}
	d := &DistDescriptor{Name: name, Idx: idx, Sub: sub}
	if err := parseOutCheck(p, &d.Output, &d.OutCL, &d.Check, &d.CheckCL, &d.Threshold); err != nil {
		return err
	}
	if !d.Output && !d.Check {
		return ErrDescriptorNeedsOutOrCheck
	}
	cfg.dst[name] = append(cfg.dst[name], d)
	return nil
}

// parseOutCheck consumes the trailing, optional `out CL` and
// `check CL threshold` clauses shared by both descriptor kinds.
func parseOutCheck(p *tokenParser, output *bool, outCL *float64, check *bool, checkCL, threshold *float64) error {
	for {
		tok, ok := p.peek()
		if !ok {
			return nil
		}
		switch tok {
		case "out":
			p.next()
			cl, err := p.mustFloat("out CL")
			if err != nil {
				return err
			}
			*output = true
			*outCL = cl
		case "check":
			p.next()
			cl, err := p.mustFloat("check CL")
			if err != nil {
				return err
			}
			th, err := p.mustFloat("check threshold")
			if err != nil {
				return err
			}
			*check = true
			*checkCL = cl
			*threshold = th
		default:
			return nil
		}
	}
}

// tokenParser walks a flat token stream with one-token lookahead.
type tokenParser struct {
	tokens []string
	pos    int
}

func (p *tokenParser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *tokenParser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *tokenParser) mustString(what string) (string, error) {
	tok, ok := p.next()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, what)
	}
	return tok, nil
}

func (p *tokenParser) mustUint(what string) (uint32, error) {
	tok, err := p.mustString(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMissingArgument, what, err)
	}
	return uint32(v), nil
}

func (p *tokenParser) mustFloat(what string) (float64, error) {
	tok, err := p.mustString(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMissingArgument, what, err)
	}
	return v, nil
}

// tokenize strips `#`-to-end-of-line comments and splits the remainder on
// whitespace.
func tokenize(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Dump writes the loaded configuration back out to w using this
// package's own grammar, so the result can be fed straight back into
// Parse (supplemented feature; grounded on the original's configuration
// dump routine). Metric names are written in sorted order for a stable,
// diffable rendering.
func (c *Config) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "save %s\n", c.SavePath); err != nil {
		return err
	}
	if c.HeaderPath != "" {
		if _, err := fmt.Fprintf(w, "header %s\n", c.HeaderPath); err != nil {
			return err
		}
	}
	if c.TrailerPath != "" {
		if _, err := fmt.Fprintf(w, "trailer %s\n", c.TrailerPath); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "minruns %d\nmaxruns %d\n", c.MinRuns, c.MaxRuns); err != nil {
		return err
	}
	for _, name := range c.MetricNames() {
		for _, d := range c.avg[name] {
			if _, err := fmt.Fprintf(w, "s %s %d%s\n", name, d.Idx, dumpOutCheck(d.Output, d.OutCL, d.Check, d.CheckCL, d.Threshold)); err != nil {
				return err
			}
		}
		for _, d := range c.dst[name] {
			if _, err := fmt.Fprintf(w, "d %s %d %s%s\n", name, d.Idx, d.Sub, dumpOutCheck(d.Output, d.OutCL, d.Check, d.CheckCL, d.Threshold)); err != nil {
				return err
			}
		}
	}
	return nil
}

// dumpOutCheck renders the trailing out/check clauses Parse's
// parseOutCheck accepts, omitting whichever clause is unset.
func dumpOutCheck(output bool, outCL float64, check bool, checkCL, threshold float64) string {
	var s string
	if output {
		s += fmt.Sprintf(" out %g", outCL)
	}
	if check {
		s += fmt.Sprintf(" check %g %g", checkCL, threshold)
	}
	return s
}
