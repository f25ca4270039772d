package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// Result is what every primitive filter and the composite predicate
// return: whether the step executes, and why (spec §4.4).
type Result struct {
	Execute bool
	Reason  string
}

// Candidate is one step under consideration, along with its 1-based
// index and owning job - everything the filter algebra needs to decide.
type Candidate struct {
	Step  *pipeline.Step
	Index int // 1-based
	Job   *pipeline.Job
}

func (c Candidate) name() string {
	if c.Step.DisplayName != "" {
		return c.Step.DisplayName
	}
	return c.Step.ID
}

// RangeSpec is one entry of the Range filter: either a numeric or a
// named (job-step-name) inclusive range (spec §3 FilterOptions.ranges).
type RangeSpec struct {
	Named             bool
	NumericStart      int
	NumericEnd        int
	NamedStart        string
	NamedEnd          string
}

// Options mirrors spec §3's FilterOptions.
type Options struct {
	Names               []string
	Indices             string // e.g. "1,3-5,7"
	Ranges              []RangeSpec
	SkipNames           []string
	JobNames            []string
	IncludeDependencies bool
	PreviewOnly         bool
	FuzzyThreshold      int
}

func (o Options) fuzzyThreshold() int {
	if o.FuzzyThreshold > 0 {
		return o.FuzzyThreshold
	}
	return DefaultFuzzyThreshold
}

// Composite is the built predicate from spec §4.4: Job gate -> Exclusion
// -> Inclusion union, highest precedence first.
type Composite struct {
	opts           Options
	indexSet       map[int]bool
	hasIndexFilter bool

	rangeCache map[string]rangeBounds // job.ID + "|" + spec -> resolved bounds
}

type rangeBounds struct {
	start, end int
	resolved   bool
}

// Build compiles Options into a Composite predicate. Malformed index
// specs are returned as an error at build time (the spec's validator
// phase calls this to surface SCHEMA/DEP-style errors before any step
// runs).
func Build(opts Options) (*Composite, error) {
	c := &Composite{opts: opts, rangeCache: make(map[string]rangeBounds)}

	if strings.TrimSpace(opts.Indices) != "" {
		set, err := parseIndexSpec(opts.Indices)
		if err != nil {
			return nil, err
		}
		c.indexSet = set
		c.hasIndexFilter = true
	}

	return c, nil
}

// parseIndexSpec parses "1,3,5" / "2-5" / "1,3-5,7" into a set of 1-based
// indices.
func parseIndexSpec(spec string) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid index range %q", part)
			}
			start, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
			end, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err1 != nil || err2 != nil || start > end {
				return nil, fmt.Errorf("invalid index range %q", part)
			}
			for i := start; i <= end; i++ {
				set[i] = true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		set[n] = true
	}
	return set, nil
}

// jobGate applies the Job filter: the step's owning job must match one of
// opts.JobNames by id or display name, case-insensitively.
func (c *Composite) jobGate(cand Candidate) Result {
	if len(c.opts.JobNames) == 0 {
		return Result{Execute: true, Reason: "no job filter configured"}
	}
	folded := fold(cand.Job.ID)
	foldedName := fold(cand.Job.DisplayName)
	for _, jn := range c.opts.JobNames {
		fj := fold(jn)
		if fj == folded || (cand.Job.DisplayName != "" && fj == foldedName) {
			return Result{Execute: true, Reason: "job \"" + jn + "\" selected"}
		}
	}
	return Result{Execute: false, Reason: "job is not selected"}
}

// exclusion applies the Exclusion filter: same matching as Name, inverted.
func (c *Composite) exclusion(cand Candidate) Result {
	if len(c.opts.SkipNames) == 0 {
		return Result{Execute: true, Reason: "not excluded"}
	}
	pattern, kind := matchName(cand.name(), c.opts.SkipNames, c.opts.fuzzyThreshold())
	if kind != matchNone {
		return Result{Execute: false, Reason: "skipped by pattern \"" + pattern + "\""}
	}
	return Result{Execute: true, Reason: "not excluded"}
}

// inclusion applies the Inclusion union: Name OR Index OR Range. If none
// of the three are configured, every step passes (spec §4.4 default).
func (c *Composite) inclusion(cand Candidate) Result {
	hasAny := len(c.opts.Names) > 0 || c.hasIndexFilter || len(c.opts.Ranges) > 0
	if !hasAny {
		return Result{Execute: true, Reason: "no inclusion filter configured; executing by default"}
	}

	if len(c.opts.Names) > 0 {
		pattern, kind := matchName(cand.name(), c.opts.Names, c.opts.fuzzyThreshold())
		if kind != matchNone {
			return Result{Execute: true, Reason: kind.reason(pattern, cand.name())}
		}
	}

	if c.hasIndexFilter && c.indexSet[cand.Index] {
		return Result{Execute: true, Reason: fmt.Sprintf("matched step index %d", cand.Index)}
	}

	for _, rs := range c.opts.Ranges {
		if c.inRange(cand, rs) {
			return Result{Execute: true, Reason: "matched step range"}
		}
	}

	if len(c.opts.Names) > 0 {
		return Result{Execute: false, Reason: "did not match any name patterns"}
	}
	return Result{Execute: false, Reason: "did not match any inclusion filter"}
}

// inRange resolves rs against cand's owning job (caching named-range
// resolution per job, per spec §4.4) and reports whether cand.Index
// falls within the inclusive bounds. A named range that cannot resolve
// at execution time is skipped (returns false), per spec §4.4; the
// validator (see Validate) is what turns that into a build-time error.
func (c *Composite) inRange(cand Candidate, rs RangeSpec) bool {
	if !rs.Named {
		return cand.Index >= rs.NumericStart && cand.Index <= rs.NumericEnd
	}

	key := cand.Job.ID + "|" + rs.NamedStart + ".." + rs.NamedEnd
	bounds, ok := c.rangeCache[key]
	if !ok {
		start, startOK := resolveStepIndex(cand.Job, rs.NamedStart)
		end, endOK := resolveStepIndex(cand.Job, rs.NamedEnd)
		bounds = rangeBounds{start: start, end: end, resolved: startOK && endOK}
		c.rangeCache[key] = bounds
	}
	if !bounds.resolved {
		return false
	}
	return cand.Index >= bounds.start && cand.Index <= bounds.end
}

// resolveStepIndex finds the 1-based index of the step in job whose name
// matches name case-insensitively.
func resolveStepIndex(job *pipeline.Job, name string) (int, bool) {
	folded := fold(name)
	for i, s := range job.Steps {
		candidateName := s.DisplayName
		if candidateName == "" {
			candidateName = s.ID
		}
		if fold(candidateName) == folded {
			return i + 1, true
		}
	}
	return 0, false
}

// Evaluate applies the full composite precedence: Job gate -> Exclusion
// -> Inclusion union.
func (c *Composite) Evaluate(cand Candidate) Result {
	if r := c.jobGate(cand); !r.Execute {
		return r
	}
	if r := c.exclusion(cand); !r.Execute {
		return r
	}
	return c.inclusion(cand)
}
