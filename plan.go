package mongocheck

import (
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// CollectionPlan is the effective field path to definition mapping for
// one monitored endpoint. Plans are immutable once built and cached for
// the life of the process.
type CollectionPlan map[string]Definition

// buildPlan merges the default categories with the requested additional
// ones, in configuration order, last write winning on a field path
// collision. Options naming a now-default category are deprecated and
// skipped; unrecognized options are skipped with a warning.
func buildPlan(additional []string) CollectionPlan {
	plan := CollectionPlan{}

	for _, name := range defaultCategoryOrder {
		for path, def := range defaultCategories[name] {
			plan[path] = def
		}
	}

	for _, option := range additional {
		category, ok := additionalCategories[option]
		if !ok {
			if _, wasDefault := defaultCategories[option]; wasDefault {
				grip.Warning(message.Fields{
					"message": "deprecated metric option, corresponding metrics are collected by default",
					"option":  option,
				})
			} else {
				grip.Warning(message.Fields{
					"message": "failed to extend the list of metrics to collect, unrecognized option",
					"option":  option,
				})
			}
			continue
		}

		grip.Debug(message.Fields{
			"message": "adding metrics to the list of metrics to collect",
			"option":  option,
		})
		for path, def := range category {
			plan[path] = def
		}
	}

	return plan
}
