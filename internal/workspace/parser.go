package workspace

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/hweiling/tripline/internal/domain"
)

// ParseRow extracts the itinerary fields from a workspace page.
//
// The parser is deliberately forgiving: a missing column, an empty property,
// or an unexpected property type yields the zero value for that field and
// never an error — one hand-mangled row in the workspace must not abort a
// whole polling batch. Every extracted field is returned as a set delta
// (pointer non-nil) so an emptied cell in the workspace clears the canonical
// value too.
func ParseRow(page notionapi.Page) Row {
	title := titleText(page.Properties[propTitle])
	date := dateText(page.Properties[propDate])
	start := richText(page.Properties[propTime])
	location := richText(page.Properties[propLocation])
	category := selectName(page.Properties[propCategory])

	return Row{
		ID:         string(page.ID),
		LastEdited: page.LastEditedTime,
		Archived:   page.Archived,
		Fields: domain.ItemFields{
			Title:     &title,
			ItemDate:  &date,
			StartTime: &start,
			Location:  &location,
			Category:  &category,
		},
	}
}

// titleText returns the concatenated plain text of a title property.
func titleText(p notionapi.Property) string {
	tp, ok := p.(*notionapi.TitleProperty)
	if !ok {
		return ""
	}
	return plainText(tp.Title)
}

// richText returns the concatenated plain text of a rich_text property.
func richText(p notionapi.Property) string {
	rp, ok := p.(*notionapi.RichTextProperty)
	if !ok {
		return ""
	}
	return plainText(rp.RichText)
}

// dateText returns the start of a date property in "2006-01-02" form.
func dateText(p notionapi.Property) string {
	dp, ok := p.(*notionapi.DateProperty)
	if !ok || dp.Date == nil || dp.Date.Start == nil {
		return ""
	}
	return time.Time(*dp.Date.Start).Format("2006-01-02")
}

// selectName returns the selected option name of a select property.
func selectName(p notionapi.Property) string {
	sp, ok := p.(*notionapi.SelectProperty)
	if !ok {
		return ""
	}
	return sp.Select.Name
}

// plainText joins a rich text array. The API fills PlainText on reads; the
// Text fallback covers payloads built locally in tests.
func plainText(rts []notionapi.RichText) string {
	var out string
	for _, rt := range rts {
		if rt.PlainText != "" {
			out += rt.PlainText
			continue
		}
		if rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}
