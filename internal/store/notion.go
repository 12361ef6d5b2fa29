package store

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/pkg/notion"
)

// NotionStore keeps documents as pages of one Notion database. Deleted
// documents are archived pages.
type NotionStore struct {
	client notion.Client
	dbID   string
}

// NewNotion returns a NotionStore over database dbID.
func NewNotion(client notion.Client, dbID string) *NotionStore {
	return &NotionStore{client: client, dbID: dbID}
}

// Migrate is a no-op: the database and its properties are provisioned in Notion.
func (s *NotionStore) Migrate(context.Context) error { return nil }

func (s *NotionStore) Close() error { return nil }

func (s *NotionStore) List(ctx context.Context, collection string) ([]Document, error) {
	pages, err := notion.QueryCollection(ctx, s.client, s.dbID, collection)
	if err != nil {
		return nil, eris.Wrapf(err, "notion store: list %s", collection)
	}
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		d, err := pageDocument(p, collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *NotionStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	page, err := s.find(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	d, err := pageDocument(*page, collection)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *NotionStore) Add(ctx context.Context, collection string, fields model.RawRecord) (*Document, error) {
	id, clean := prepareFields(fields)
	props, err := notion.RecordProperties(collection, id, clean)
	if err != nil {
		return nil, err
	}
	page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion store: add %s/%s", collection, id)
	}
	return &Document{
		ID:         id,
		Collection: collection,
		Fields:     clean,
		CreatedAt:  page.CreatedTime,
		UpdatedAt:  page.LastEditedTime,
	}, nil
}

func (s *NotionStore) Update(ctx context.Context, collection, id string, fields model.RawRecord) error {
	page, err := s.find(ctx, collection, id)
	if err != nil {
		return err
	}
	props, err := notion.RecordProperties(collection, id, stripMetadata(fields))
	if err != nil {
		return err
	}
	_, err = s.client.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{Properties: props})
	return eris.Wrapf(err, "notion store: update %s/%s", collection, id)
}

func (s *NotionStore) Delete(ctx context.Context, collection, id string) error {
	page, err := s.find(ctx, collection, id)
	if err != nil {
		return err
	}
	_, err = s.client.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{
		Archived:   true,
		Properties: notionapi.Properties{},
	})
	return eris.Wrapf(err, "notion store: delete %s/%s", collection, id)
}

// find locates the live page holding (collection, id).
func (s *NotionStore) find(ctx context.Context, collection, id string) (*notionapi.Page, error) {
	pages, err := notion.QueryCollection(ctx, s.client, s.dbID, collection)
	if err != nil {
		return nil, eris.Wrapf(err, "notion store: find %s/%s", collection, id)
	}
	for i := range pages {
		if notion.RecordID(pages[i]) == id || string(pages[i].ID) == id {
			return &pages[i], nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "notion store: %s/%s", collection, id)
}

func pageDocument(p notionapi.Page, collection string) (Document, error) {
	id, fields, err := notion.DecodeRecord(p)
	if err != nil {
		return Document{}, eris.Wrapf(err, "notion store: decode %s", p.ID)
	}
	return Document{
		ID:         id,
		Collection: collection,
		Fields:     fields,
		CreatedAt:  p.CreatedTime,
		UpdatedAt:  p.LastEditedTime,
	}, nil
}
