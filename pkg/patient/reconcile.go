package patient

import "github.com/careloop/patientsync/pkg/common/models"

// InsertPolicy decides where a record lands when it matches nothing already
// in the list.
type InsertPolicy int

const (
	PrependNew InsertPolicy = iota
	AppendNew
)

// Merge reconciles an updated record into a list. The reconciliation key is
// (id, third_party_id): an id match replaces in place, a third_party_id match
// replaces the placeholder row a copy superseded, and anything else inserts
// per policy. The result never holds two entries with the same non-empty id
// or the same non-empty third_party_id.
func Merge(existing []models.Patient, updated models.Patient, policy InsertPolicy) []models.Patient {
	for i, p := range existing {
		if updated.ID != "" && p.ID == updated.ID {
			merged := make([]models.Patient, len(existing))
			copy(merged, existing)
			merged[i] = updated
			return dedupe(merged, i)
		}
	}

	for i, p := range existing {
		if updated.ThirdPartyID != "" && p.ThirdPartyID == updated.ThirdPartyID {
			merged := make([]models.Patient, len(existing))
			copy(merged, existing)
			merged[i] = updated
			return dedupe(merged, i)
		}
	}

	if policy == AppendNew {
		return append(append([]models.Patient{}, existing...), updated)
	}
	return append([]models.Patient{updated}, existing...)
}

// dedupe drops any entry other than keep that shares a non-empty key with it.
// A copy result can match an old local row by id while a stale placeholder
// still carries its third_party_id; only one may survive.
func dedupe(list []models.Patient, keep int) []models.Patient {
	kept := list[keep]
	out := list[:0]
	for i, p := range list {
		if i != keep {
			if kept.ID != "" && p.ID == kept.ID {
				continue
			}
			if kept.ThirdPartyID != "" && p.ThirdPartyID == kept.ThirdPartyID {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// ListEvent is a state transition applied to an in-memory patient list.
type ListEvent interface {
	isListEvent()
}

type Created struct {
	Patient models.Patient
}

type Deleted struct {
	ID string
}

type Copied struct {
	Patient models.Patient
}

type PageLoaded struct {
	Patients []models.Patient
}

func (Created) isListEvent()    {}
func (Deleted) isListEvent()    {}
func (Copied) isListEvent()     {}
func (PageLoaded) isListEvent() {}

// Apply is the pure reducer over list state: (currentList, event) -> newList.
// The input slice is never mutated.
func Apply(list []models.Patient, event ListEvent) []models.Patient {
	switch ev := event.(type) {
	case PageLoaded:
		return append([]models.Patient{}, ev.Patients...)
	case Created:
		return Merge(list, ev.Patient, PrependNew)
	case Copied:
		// A copy upgrades the placeholder row in place rather than adding a
		// second entry for the same external identity.
		return Merge(list, ev.Patient, PrependNew)
	case Deleted:
		out := make([]models.Patient, 0, len(list))
		for _, p := range list {
			if p.ID == ev.ID {
				continue
			}
			out = append(out, p)
		}
		return out
	}
	return list
}
