package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Instance is one runnable unit: a job template bound to a single matrix
// combination. Jobs without a matrix expand to exactly one instance with no
// parameters.
type Instance struct {
	// ID is unique within a run, e.g. "typecheck (3.9)".
	ID     string
	JobKey string
	Job    *Job
	Params map[string]string
}

// Expand returns the instances of a job in deterministic order: axes sorted
// by name, values in listed order, excludes applied to the product, includes
// merged or appended afterwards.
func Expand(key string, job *Job) []Instance {
	if job.Strategy == nil || len(job.Strategy.Matrix) == 0 {
		return []Instance{{
			ID:     key,
			JobKey: key,
			Job:    job,
			Params: map[string]string{},
		}}
	}

	axes := make([]string, 0, len(job.Strategy.Matrix))
	for axis := range job.Strategy.Matrix {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	combos := []map[string]string{{}}
	for _, axis := range axes {
		next := make([]map[string]string, 0, len(combos)*len(job.Strategy.Matrix[axis]))
		for _, combo := range combos {
			for _, value := range job.Strategy.Matrix[axis] {
				extended := cloneParams(combo)
				extended[axis] = value
				next = append(next, extended)
			}
		}
		combos = next
	}

	combos = applyExcludes(combos, job.Strategy.Exclude)
	combos = applyIncludes(combos, job.Strategy.Include, axes)

	instances := make([]Instance, 0, len(combos))
	for _, combo := range combos {
		instances = append(instances, Instance{
			ID:     instanceID(key, combo, axes),
			JobKey: key,
			Job:    job,
			Params: combo,
		})
	}

	return instances
}

func applyExcludes(combos []map[string]string, excludes []map[string]string) []map[string]string {
	if len(excludes) == 0 {
		return combos
	}

	kept := combos[:0]
	for _, combo := range combos {
		excluded := false
		for _, excl := range excludes {
			if subsetOf(excl, combo) {
				excluded = true

				break
			}
		}
		if !excluded {
			kept = append(kept, combo)
		}
	}

	return kept
}

func applyIncludes(combos []map[string]string, includes []map[string]string, axes []string) []map[string]string {
	for _, incl := range includes {
		onAxes := map[string]string{}
		for _, axis := range axes {
			if v, ok := incl[axis]; ok {
				onAxes[axis] = v
			}
		}

		merged := false
		if len(onAxes) > 0 {
			for _, combo := range combos {
				if subsetOf(onAxes, combo) {
					for k, v := range incl {
						if _, isAxis := combo[k]; !isAxis {
							combo[k] = v
						}
					}
					merged = true
				}
			}
		}
		if !merged {
			combos = append(combos, cloneParams(incl))
		}
	}

	return combos
}

func subsetOf(sub, combo map[string]string) bool {
	for k, v := range sub {
		if combo[k] != v {
			return false
		}
	}

	return true
}

func instanceID(key string, combo map[string]string, axes []string) string {
	if len(combo) == 0 {
		return key
	}

	values := make([]string, 0, len(combo))
	for _, axis := range axes {
		if v, ok := combo[axis]; ok {
			values = append(values, v)
		}
	}
	// includes may add parameters outside the declared axes
	extras := make([]string, 0)
	for k := range combo {
		known := false
		for _, axis := range axes {
			if axis == k {
				known = true

				break
			}
		}
		if !known {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		values = append(values, combo[k])
	}

	return fmt.Sprintf("%s (%s)", key, strings.Join(values, ", "))
}

func cloneParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
