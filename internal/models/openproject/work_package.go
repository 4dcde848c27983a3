// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// WorkPackage is one work item as returned by /api/v3/work_packages.
//
// EstimatedTime and SpentTime are ISO 8601 durations ("PT8H30M"), StartDate
// and DueDate are plain dates, CreatedAt and UpdatedAt are RFC 3339
// timestamps. Installation-defined customFieldN keys are not modeled here;
// the extractor collects them from the raw element into a JSON bag.
type WorkPackage struct {
	ID             int64        `json:"id"`
	LockVersion    int          `json:"lockVersion"`
	Subject        string       `json:"subject"`
	Description    *Formattable `json:"description"`
	StartDate      *string      `json:"startDate"`
	DueDate        *string      `json:"dueDate"`
	EstimatedTime  *string      `json:"estimatedTime"`
	SpentTime      *string      `json:"spentTime"`
	PercentageDone *int         `json:"percentageDone"`
	CreatedAt      string       `json:"createdAt"`
	UpdatedAt      string       `json:"updatedAt"`

	Links WorkPackageLinks `json:"_links"`
}

// WorkPackageLinks holds the cross-entity references of a work package.
type WorkPackageLinks struct {
	Self        *Link `json:"self"`
	Project     *Link `json:"project"`
	Type        *Link `json:"type"`
	Status      *Link `json:"status"`
	Priority    *Link `json:"priority"`
	Author      *Link `json:"author"`
	Assignee    *Link `json:"assignee"`
	Responsible *Link `json:"responsible"`
	Parent      *Link `json:"parent"`
	Version     *Link `json:"version"`
	Category    *Link `json:"category"`
}
