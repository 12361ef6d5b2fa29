package notion

import (
	"encoding/json"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of a record database. The database needs a title property
// named "ID", a select named "Collection" and a rich-text named "Fields".
const (
	PropID         = "ID"
	PropCollection = "Collection"
	PropFields     = "Fields"
)

// maxTextChunk is Notion's limit for one rich-text content string.
const maxTextChunk = 2000

// RecordProperties encodes one record as page properties. Fields are stored
// as JSON split across rich-text segments.
func RecordProperties(collection, id string, fields map[string]any) (notionapi.Properties, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, eris.Wrap(err, "notion: marshal fields")
	}
	return notionapi.Properties{
		PropID: notionapi.TitleProperty{
			Title: []notionapi.RichText{textSegment(id)},
		},
		PropCollection: notionapi.SelectProperty{
			Select: notionapi.Option{Name: collection},
		},
		PropFields: notionapi.RichTextProperty{
			RichText: chunkText(string(body)),
		},
	}, nil
}

// DecodeRecord reads a page written by RecordProperties. The page ID stands
// in when the ID property is empty.
func DecodeRecord(page notionapi.Page) (string, map[string]any, error) {
	id := strings.TrimSpace(plainText(titleOf(page.Properties[PropID])))
	if id == "" {
		id = string(page.ID)
	}

	fields := map[string]any{}
	body := plainText(richTextOf(page.Properties[PropFields]))
	if strings.TrimSpace(body) == "" {
		return id, fields, nil
	}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return "", nil, eris.Wrapf(err, "notion: decode fields of page %s", page.ID)
	}
	return id, fields, nil
}

// RecordID returns the ID property of page without decoding its fields.
func RecordID(page notionapi.Page) string {
	return strings.TrimSpace(plainText(titleOf(page.Properties[PropID])))
}

func textSegment(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

// chunkText splits s into segments of at most maxTextChunk runes.
func chunkText(s string) []notionapi.RichText {
	runes := []rune(s)
	out := make([]notionapi.RichText, 0, len(runes)/maxTextChunk+1)
	for len(runes) > maxTextChunk {
		out = append(out, textSegment(string(runes[:maxTextChunk])))
		runes = runes[maxTextChunk:]
	}
	return append(out, textSegment(string(runes)))
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// Property values decoded from the API are pointers; locally built ones are
// values. Both shapes are accepted.

func titleOf(p notionapi.Property) []notionapi.RichText {
	switch t := p.(type) {
	case *notionapi.TitleProperty:
		return t.Title
	case notionapi.TitleProperty:
		return t.Title
	}
	return nil
}

func richTextOf(p notionapi.Property) []notionapi.RichText {
	switch t := p.(type) {
	case *notionapi.RichTextProperty:
		return t.RichText
	case notionapi.RichTextProperty:
		return t.RichText
	}
	return nil
}
