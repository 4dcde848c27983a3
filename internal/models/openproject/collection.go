// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

import (
	"github.com/goccy/go-json"
)

// Collection is the paginated envelope every list endpoint returns.
//
// Elements are kept as raw JSON: the collector only needs the counts for
// pagination, and the extractor decodes each element into its typed struct
// while also keeping the verbatim payload for the all-fields snapshot.
type Collection struct {
	Type     string   `json:"_type"`
	Total    int      `json:"total"`
	Count    int      `json:"count"`
	PageSize int      `json:"pageSize"`
	Offset   int      `json:"offset"` // 1-based page number, despite the name
	Embedded Embedded `json:"_embedded"`
}

// Embedded holds the nested element list.
type Embedded struct {
	Elements []json.RawMessage `json:"elements"`
}

// Len returns the number of elements on this page.
func (c *Collection) Len() int {
	return len(c.Embedded.Elements)
}

// Link is one _links entry: an href whose trailing segment is the referenced
// resource's numeric id, plus a display title. Href is nil when the
// reference is unset.
type Link struct {
	Href  *string `json:"href"`
	Title string  `json:"title"`
}

// Formattable is OpenProject's rich-text wrapper {format, raw, html}. Some
// endpoints and versions return a bare string instead, so unmarshalling
// accepts both shapes.
type Formattable struct {
	Format string `json:"format"`
	Raw    string `json:"raw"`
	HTML   string `json:"html"`
}

// UnmarshalJSON accepts either the {format, raw, html} object or a bare
// string, storing the latter in Raw.
func (f *Formattable) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.Raw)
	}

	type alias Formattable
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Formattable(a)
	return nil
}

// Root is the API root document used to verify connectivity and
// credentials.
type Root struct {
	Type         string `json:"_type"`
	InstanceName string `json:"instanceName"`
	CoreVersion  string `json:"coreVersion"`
}
