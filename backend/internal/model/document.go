package model

import "time"

// Document is the unit of editing. ID is either a server id or a local draft id (see IsLocalDraft).
type Document struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	OwnerID       string            `json:"ownerId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Shared        bool              `json:"shared"`
	Collaborators []CollaboratorRef `json:"collaborators,omitempty"`

	// alternate id keys some backends answer with
	LegacyID string `json:"_id,omitempty"`
	DocID    string `json:"docId,omitempty"`
}

type CollaboratorRef struct {
	UserID     string     `json:"userId"`
	Permission Permission `json:"permission"`
}

// Normalize copies an alternate id key into ID and drops the aliases.
func (d Document) Normalize() Document {
	if d.ID == "" {
		switch {
		case d.LegacyID != "":
			d.ID = d.LegacyID
		case d.DocID != "":
			d.ID = d.DocID
		}
	}
	d.LegacyID = ""
	d.DocID = ""
	return d
}

// Changes is a partial edit. A nil field is untouched.
type Changes struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

func TitleChange(title string) Changes     { return Changes{Title: &title} }
func ContentChange(content string) Changes { return Changes{Content: &content} }

func (c Changes) Empty() bool { return c.Title == nil && c.Content == nil }

// Merge returns c overlaid with next; fields set in next win.
func (c Changes) Merge(next Changes) Changes {
	if next.Title != nil {
		t := *next.Title
		c.Title = &t
	}
	if next.Content != nil {
		s := *next.Content
		c.Content = &s
	}
	return c
}

// Apply writes the set fields of c into d.
func (d *Document) Apply(c Changes) {
	if c.Title != nil {
		d.Title = *c.Title
	}
	if c.Content != nil {
		d.Content = *c.Content
	}
}

// Diff returns the fields of d that differ from the synced values.
func (d Document) Diff(syncedTitle, syncedContent string) Changes {
	var c Changes
	if d.Title != syncedTitle {
		c = c.Merge(TitleChange(d.Title))
	}
	if d.Content != syncedContent {
		c = c.Merge(ContentChange(d.Content))
	}
	return c
}
