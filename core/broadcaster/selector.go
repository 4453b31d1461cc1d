package broadcaster

// Selector narrows a registry snapshot to the recipients of one broadcast.
// Strict selectors fail on a destroyed broadcaster; the others answer with a
// future already resolved to the original message.
type Selector struct {
	name   string
	strict bool
	pick   func(TargetSet) TargetSet
}

func (s Selector) String() string { return s.name }

// Strict reports whether the selector fails on a destroyed broadcaster.
func (s Selector) Strict() bool { return s.strict }

// Targets applies the selector to a snapshot.
func (s Selector) Targets(snapshot TargetSet) TargetSet {
	if s.pick == nil {
		return snapshot
	}
	return s.pick(snapshot)
}

// All targets every registered resource.
func All() Selector {
	return Selector{name: "all", strict: true}
}

// Excluding targets everyone except r, typically the sender.
func Excluding(r Resource) Selector {
	return Selector{
		name: "excluding",
		pick: func(s TargetSet) TargetSet {
			if r == nil {
				return s
			}
			return s.Without(r)
		},
	}
}

// ExcludingSubset targets everyone not in rs.
func ExcludingSubset(rs ...Resource) Selector {
	return Selector{
		name: "excluding_subset",
		pick: func(s TargetSet) TargetSet { return s.Without(rs...) },
	}
}

// ExcludingKeys drops every resource whose correlation key is one of keys,
// cancelled or not. Resources with an empty key are always kept.
func ExcludingKeys(keys ...string) Selector {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return Selector{
		name: "excluding_keys",
		pick: func(s TargetSet) TargetSet {
			if len(set) == 0 {
				return s
			}
			return s.WithoutFunc(func(r Resource) bool {
				key := r.CorrelationKey()
				if key == "" {
					return false
				}
				_, drop := set[key]
				return drop
			})
		},
	}
}

// Only targets the registered members of rs.
func Only(rs ...Resource) Selector {
	return Selector{
		name: "only",
		pick: func(s TargetSet) TargetSet { return s.Only(rs...) },
	}
}

// Matching targets the resources for which keep returns true.
func Matching(name string, keep func(Resource) bool) Selector {
	return Selector{
		name: name,
		pick: func(s TargetSet) TargetSet {
			return s.WithoutFunc(func(r Resource) bool { return !keep(r) })
		},
	}
}
