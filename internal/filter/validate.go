package filter

import "github.com/pdk-cli/pdk/internal/pipeline"

// Issue is a single problem surfaced by Validate: a named range endpoint
// that no step in its job satisfies, or an inclusion pattern that matched
// nothing in the whole pipeline.
type Issue struct {
	Warning bool
	Message string
}

// Validate walks every job/step in p against opts and reports zero-match
// inclusion name patterns as warnings and unresolved named-range endpoints
// as errors (spec §4.4).
func Validate(p *pipeline.Pipeline, opts Options) ([]Issue, error) {
	c, err := Build(opts)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	matchedNames := make(map[string]bool, len(opts.Names))

	for _, job := range p.OrderedJobs() {
		for i, step := range job.Steps {
			cand := Candidate{Step: step, Index: i + 1, Job: job}
			if len(opts.Names) > 0 {
				if pattern, kind := matchName(cand.name(), opts.Names, opts.fuzzyThreshold()); kind != matchNone {
					matchedNames[pattern] = true
				}
			}
		}
		for _, rs := range opts.Ranges {
			if !rs.Named {
				continue
			}
			if _, ok := resolveStepIndex(job, rs.NamedStart); !ok {
				issues = append(issues, Issue{Message: "named range start \"" + rs.NamedStart + "\" does not match any step in job \"" + job.ID + "\""})
			}
			if _, ok := resolveStepIndex(job, rs.NamedEnd); !ok {
				issues = append(issues, Issue{Message: "named range end \"" + rs.NamedEnd + "\" does not match any step in job \"" + job.ID + "\""})
			}
		}
	}

	for _, name := range opts.Names {
		if !matchedNames[name] {
			issues = append(issues, Issue{Warning: true, Message: "step name pattern \"" + name + "\" did not match any step"})
		}
	}

	_ = c // Build is only used for the index-spec validation side effect above.
	return issues, nil
}
