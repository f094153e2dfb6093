package docstore

import (
	"slices"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

func (s *Store) Collaborators() []model.Collaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.collaborators)
}

func (s *Store) Collaborator(id string) (model.Collaborator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.collaborators[i], true
	}
	return model.Collaborator{}, false
}

// SetCollaborators replaces the roster; later duplicates of an id are dropped.
func (s *Store) SetCollaborators(list []model.Collaborator) {
	roster := make([]model.Collaborator, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		c = c.Normalize()
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		roster = append(roster, c)
	}
	s.update(func() bool {
		s.collaborators = roster
		return true
	})
}

// AddCollaborator inserts c, or refreshes the existing entry with the same id.
func (s *Store) AddCollaborator(c model.Collaborator) {
	c = c.Normalize()
	s.update(func() bool {
		if i := s.indexLocked(c.ID); i >= 0 {
			prev := s.collaborators[i]
			if c.Permission == "" {
				c.Permission = prev.Permission
			}
			if c.Status == "" {
				c.Status = prev.Status
			}
			s.collaborators[i] = c
			return true
		}
		s.collaborators = append(s.collaborators, c)
		return true
	})
}

func (s *Store) RemoveCollaborator(id string) bool {
	return s.mutateCollaborator(id, func(i int) {
		s.collaborators = slices.Delete(s.collaborators, i, i+1)
	})
}

func (s *Store) UpdateStatus(id string, status model.Status) bool {
	return s.mutateCollaborator(id, func(i int) { s.collaborators[i].Status = status })
}

func (s *Store) UpdatePermission(id string, p model.Permission) bool {
	return s.mutateCollaborator(id, func(i int) { s.collaborators[i].Permission = p })
}

// SetTyping flags a collaborator as typing; typing implies online.
func (s *Store) SetTyping(id string, typing bool) bool {
	return s.mutateCollaborator(id, func(i int) {
		s.collaborators[i].Typing = typing
		if typing {
			s.collaborators[i].Status = model.StatusOnline
		}
	})
}

func (s *Store) mutateCollaborator(id string, fn func(i int)) bool {
	found := false
	s.update(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		fn(i)
		found = true
		return true
	})
	return found
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.collaborators, func(c model.Collaborator) bool { return c.ID == id })
}
