package docstore

import (
	"slices"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func (s *Store) List() []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Document, len(s.list))
	for i, d := range s.list {
		out[i] = cloneDoc(d)
	}
	return out
}

func (s *Store) SetList(docs []model.Document) {
	list := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		list = append(list, cloneDoc(d.Normalize()))
	}
	s.update(func() bool {
		s.list = list
		return true
	})
}

// UpsertInList records doc in the document list. A created document is prepended; an updated one
// replaces the entry with the same id, or is prepended when absent. replacesID drops the entry a
// promoted draft used to have. With title purge on, local drafts titled like a persisted doc are
// dropped as well; equal titles do not prove identity, so replacesID is the reliable path.
func (s *Store) UpsertInList(doc model.Document, created bool, replacesID string) {
	doc = cloneDoc(doc.Normalize())
	s.update(func() bool {
		list := slices.DeleteFunc(slices.Clone(s.list), func(d model.Document) bool {
			if replacesID != "" && d.ID == replacesID && replacesID != doc.ID {
				return true
			}
			return s.titlePurge && !model.IsLocalDraft(doc.ID) && model.IsLocalDraft(d.ID) && d.Title == doc.Title
		})
		idx := slices.IndexFunc(list, func(d model.Document) bool { return d.ID == doc.ID })
		switch {
		case idx >= 0 && !created:
			list[idx] = doc
		case idx >= 0:
			list = slices.Delete(list, idx, idx+1)
			list = slices.Insert(list, 0, doc)
		default:
			list = slices.Insert(list, 0, doc)
		}
		s.list = list
		return true
	})
}

func (s *Store) RemoveFromList(id string) bool {
	removed := false
	s.update(func() bool {
		n := len(s.list)
		s.list = slices.DeleteFunc(s.list, func(d model.Document) bool { return d.ID == id })
		removed = len(s.list) != n
		return removed
	})
	return removed
}
