package aggregator

import (
	"github.com/google/btree"

	"github.com/mabhi256/paramspec/internal/model"
	"github.com/mabhi256/paramspec/internal/profile"
)

// methodProfiles is everything known about one method: the summarized
// profile, or the merged per-invocation profiles in unsummarized mode.
type methodProfiles struct {
	method  *model.Method
	summary *profile.MethodProfile
	samples []*profile.ParameterProfile
}

func byMethodID(a, b *methodProfiles) bool {
	return a.method.ID < b.method.ID
}

func newStore() *btree.BTreeG[*methodProfiles] {
	return btree.NewG(8, byMethodID)
}

func key(m *model.Method) *methodProfiles {
	return &methodProfiles{method: m}
}

// tryMerge folds p into the first equal profile in the list.
func (mp *methodProfiles) tryMerge(p *profile.ParameterProfile) bool {
	for _, existing := range mp.samples {
		if existing.MergeWith(p) {
			return true
		}
	}
	return false
}
