// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/models/openproject"
)

// Element-level skip causes. The batch loop maps these onto metric reasons;
// anything else from a builder is a decode failure.
var (
	errDecode    = errors.New("element decode failed")
	errMissingID = errors.New("element has no id")
)

// isoDuration matches the PT#H#M#S duration shape. Hours and minutes are
// whole numbers in practice; seconds may carry a fraction. Every component
// is optional, so a bare "PT" parses to zero hours.
var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?`)

// parseDuration converts a duration string to decimal hours. It accepts the
// ISO 8601 PT#H#M#S form, then "H:MM", then a bare decimal; anything else
// yields nil. "PT8H30M", "8:30" and "8.5" all come out as 8.5.
func parseDuration(s *string) *float64 {
	if s == nil || *s == "" {
		return nil
	}

	if m := isoDuration.FindStringSubmatch(*s); m != nil {
		var hours float64
		if m[1] != "" {
			h, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil
			}
			hours += h
		}
		if m[2] != "" {
			min, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return nil
			}
			hours += min / 60
		}
		if m[3] != "" {
			sec, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				return nil
			}
			hours += sec / 3600
		}
		return &hours
	}

	if strings.Contains(*s, ":") {
		parts := strings.Split(*s, ":")
		hours, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil
		}
		minutes, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil
		}
		total := hours + minutes/60
		return &total
	}

	hours, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &hours
}

// parseTimestamp parses an RFC 3339 timestamp, "Z"-suffixed or with an
// explicit offset, normalized to UTC. Invalid input yields nil; the raw
// payload keeps the evidence.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// parseDate validates a plain YYYY-MM-DD date, falling back to the date part
// of a full timestamp. Invalid input yields nil.
func parseDate(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", *s); err == nil {
		d := *s
		return &d
	}
	if ts := parseTimestamp(*s); ts != nil {
		d := ts.Format("2006-01-02")
		return &d
	}
	return nil
}

// linkID extracts the numeric id from a _links href by taking its last path
// segment. Unset links and non-numeric tails (e.g. ".../statuses/closed")
// yield nil.
func linkID(l *openproject.Link) *int64 {
	if l == nil || l.Href == nil || *l.Href == "" {
		return nil
	}
	parts := strings.Split(*l.Href, "/")
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// linkTitle returns the display title of a link, or "" when the link is
// unset.
func linkTitle(l *openproject.Link) string {
	if l == nil {
		return ""
	}
	return l.Title
}

// formattableRaw unwraps the rich-text raw value. Descriptions and comments
// arrive as either a {format, raw, html} object or a bare string; the
// Formattable decoder folds both into Raw.
func formattableRaw(f *openproject.Formattable) string {
	if f == nil {
		return ""
	}
	return f.Raw
}

// customFieldsBag collects the installation-defined customFieldN keys of a
// raw element into their own JSON document. Nil when the element carries
// none.
func customFieldsBag(element json.RawMessage) *string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(element, &fields); err != nil {
		return nil
	}

	bag := make(map[string]json.RawMessage)
	for key, value := range fields {
		if strings.HasPrefix(key, "customField") {
			bag[key] = value
		}
	}
	if len(bag) == 0 {
		return nil
	}

	data, err := json.Marshal(bag)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// buildWorkPackage decodes one work-package element into its tool row. The
// backfilled columns (logins, project identifier, closed flag) start empty;
// the reference resolver fills them once users, projects and statuses are in
// place.
func buildWorkPackage(connectionID int64, element json.RawMessage) (*models.ToolWorkPackage, error) {
	var wp openproject.WorkPackage
	if err := json.Unmarshal(element, &wp); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if wp.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolWorkPackage{
		ConnectionID: connectionID,
		ID:           wp.ID,
		Subject:      wp.Subject,
		Description:  formattableRaw(wp.Description),
		StartDate:    parseDate(wp.StartDate),
		DueDate:      parseDate(wp.DueDate),
		CreatedAt:    parseTimestamp(wp.CreatedAt),
		UpdatedAt:    parseTimestamp(wp.UpdatedAt),

		EstimatedHours: parseDuration(wp.EstimatedTime),
		SpentHours:     parseDuration(wp.SpentTime),

		ProjectID:   linkID(wp.Links.Project),
		ProjectName: linkTitle(wp.Links.Project),

		TypeID:   linkID(wp.Links.Type),
		TypeName: linkTitle(wp.Links.Type),

		StatusID:   linkID(wp.Links.Status),
		StatusName: linkTitle(wp.Links.Status),

		PriorityID:   linkID(wp.Links.Priority),
		PriorityName: linkTitle(wp.Links.Priority),

		AssigneeID:   linkID(wp.Links.Assignee),
		AssigneeName: linkTitle(wp.Links.Assignee),

		ResponsibleID:   linkID(wp.Links.Responsible),
		ResponsibleName: linkTitle(wp.Links.Responsible),

		AuthorID:   linkID(wp.Links.Author),
		AuthorName: linkTitle(wp.Links.Author),

		ParentID: linkID(wp.Links.Parent),

		VersionID:   linkID(wp.Links.Version),
		VersionName: linkTitle(wp.Links.Version),

		CategoryID:   linkID(wp.Links.Category),
		CategoryName: linkTitle(wp.Links.Category),

		CustomFields: customFieldsBag(element),
		AllFields:    string(element),
	}, nil
}

// buildProject decodes one project element into its tool row.
func buildProject(connectionID int64, element json.RawMessage) (*models.ToolProject, error) {
	var p openproject.Project
	if err := json.Unmarshal(element, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if p.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolProject{
		ConnectionID: connectionID,
		ID:           p.ID,
		Identifier:   p.Identifier,
		Name:         p.Name,
		Description:  formattableRaw(p.Description),
		Status:       p.Status,
		Active:       p.Active,
		IsPublic:     p.Public,
		ParentID:     linkID(p.Links.Parent),
		ParentName:   linkTitle(p.Links.Parent),
		CreatedAt:    parseTimestamp(p.CreatedAt),
		UpdatedAt:    parseTimestamp(p.UpdatedAt),
		AllFields:    string(element),
	}, nil
}

// buildUser decodes one user element into its tool row.
func buildUser(connectionID int64, element json.RawMessage) (*models.ToolUser, error) {
	var u openproject.User
	if err := json.Unmarshal(element, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if u.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolUser{
		ConnectionID: connectionID,
		ID:           u.ID,
		Login:        u.Login,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Name:         u.Name,
		Mail:         u.Email,
		Admin:        u.Admin,
		Avatar:       u.Avatar,
		Status:       u.Status,
		Language:     u.Language,
		IdentityURL:  u.IdentityURL,
		CreatedAt:    parseTimestamp(u.CreatedAt),
		UpdatedAt:    parseTimestamp(u.UpdatedAt),
		AllFields:    string(element),
	}, nil
}

// buildTimeEntry decodes one time-entry element into its tool row. UserLogin
// stays empty for the reference resolver.
func buildTimeEntry(connectionID int64, element json.RawMessage) (*models.ToolTimeEntry, error) {
	var te openproject.TimeEntry
	if err := json.Unmarshal(element, &te); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if te.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolTimeEntry{
		ConnectionID: connectionID,
		ID:           te.ID,
		Hours:        parseDuration(te.Hours),
		Comment:      formattableRaw(te.Comment),
		SpentOn:      parseDate(te.SpentOn),

		WorkPackageID:    linkID(te.Links.WorkPackage),
		WorkPackageTitle: linkTitle(te.Links.WorkPackage),

		UserID:   linkID(te.Links.User),
		UserName: linkTitle(te.Links.User),

		ActivityID:   linkID(te.Links.Activity),
		ActivityName: linkTitle(te.Links.Activity),

		ProjectID:   linkID(te.Links.Project),
		ProjectName: linkTitle(te.Links.Project),

		CreatedAt: parseTimestamp(te.CreatedAt),
		UpdatedAt: parseTimestamp(te.UpdatedAt),
		AllFields: string(element),
	}, nil
}

// buildVersion decodes one version element into its tool row. The API calls
// the end of a version "endDate"; the tool column keeps the due_date name
// used by every other dated entity.
func buildVersion(connectionID int64, element json.RawMessage) (*models.ToolVersion, error) {
	var v openproject.Version
	if err := json.Unmarshal(element, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if v.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolVersion{
		ConnectionID: connectionID,
		ID:           v.ID,
		Name:         v.Name,
		Description:  formattableRaw(v.Description),
		Status:       v.Status,
		StartDate:    parseDate(v.StartDate),
		DueDate:      parseDate(v.EndDate),
		Sharing:      v.Sharing,
		ProjectID:    linkID(v.Links.DefiningProject),
		ProjectName:  linkTitle(v.Links.DefiningProject),
		CreatedAt:    parseTimestamp(v.CreatedAt),
		UpdatedAt:    parseTimestamp(v.UpdatedAt),
		AllFields:    string(element),
	}, nil
}

// buildStatus decodes one status dictionary element.
func buildStatus(connectionID int64, element json.RawMessage) (*models.ToolStatus, error) {
	var s openproject.Status
	if err := json.Unmarshal(element, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if s.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolStatus{
		ConnectionID:     connectionID,
		ID:               s.ID,
		Name:             s.Name,
		IsClosed:         s.IsClosed,
		IsDefault:        s.IsDefault,
		Position:         s.Position,
		DefaultDoneRatio: s.DefaultDoneRatio,
		Color:            s.Color,
		AllFields:        string(element),
	}, nil
}

// buildType decodes one work-package type dictionary element.
func buildType(connectionID int64, element json.RawMessage) (*models.ToolType, error) {
	var t openproject.Type
	if err := json.Unmarshal(element, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if t.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolType{
		ConnectionID: connectionID,
		ID:           t.ID,
		Name:         t.Name,
		Color:        t.Color,
		Position:     t.Position,
		IsDefault:    t.IsDefault,
		IsMilestone:  t.IsMilestone,
		AllFields:    string(element),
	}, nil
}

// buildPriority decodes one priority dictionary element.
func buildPriority(connectionID int64, element json.RawMessage) (*models.ToolPriority, error) {
	var p openproject.Priority
	if err := json.Unmarshal(element, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if p.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolPriority{
		ConnectionID: connectionID,
		ID:           p.ID,
		Name:         p.Name,
		Position:     p.Position,
		Color:        p.Color,
		IsDefault:    p.IsDefault,
		IsActive:     p.IsActive,
		AllFields:    string(element),
	}, nil
}

// buildActivity decodes one time-entry activity dictionary element.
func buildActivity(connectionID int64, element json.RawMessage) (*models.ToolActivity, error) {
	var a openproject.Activity
	if err := json.Unmarshal(element, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	if a.ID == 0 {
		return nil, errMissingID
	}

	return &models.ToolActivity{
		ConnectionID: connectionID,
		ID:           a.ID,
		Name:         a.Name,
		Position:     a.Position,
		IsDefault:    a.IsDefault,
		IsActive:     a.IsActive,
		AllFields:    string(element),
	}, nil
}
