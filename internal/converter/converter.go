// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
converter.go - Tool-to-domain conversion stage

Projects the connection's tool rows into the shared cross-tool tables:
work packages become issues, projects become boards, users become accounts,
time entries become worklogs and versions become sprints. Every row gets the
deterministic id "openproject:<Kind>:<connection>:<native>", so re-running
the converter rewrites the same rows.

Each kind first purges the connection's stale rows by id prefix, then
upserts the fresh projection. The domain tables belong to the warehouse
deployment and are only validated here; `worklake migrate --domain`
bootstraps them for standalone installs. Sprint tables are optional and a
failed sprint pass degrades to a warning.
*/

//nolint:staticcheck // File documentation, not package doc
package converter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
)

// Store is the slice of the warehouse the converter reads and writes.
type Store interface {
	ValidateDomainTables(ctx context.Context) error
	HasSprintTables(ctx context.Context) (bool, error)

	ListToolWorkPackages(ctx context.Context, connectionID int64) ([]models.ToolWorkPackage, error)
	ListToolProjects(ctx context.Context, connectionID int64) ([]models.ToolProject, error)
	ListToolUsers(ctx context.Context, connectionID int64) ([]models.ToolUser, error)
	ListToolTimeEntries(ctx context.Context, connectionID int64) ([]models.ToolTimeEntry, error)
	ListToolVersions(ctx context.Context, connectionID int64) ([]models.ToolVersion, error)

	DeleteDomainRowsByPrefix(ctx context.Context, table, column, prefix string) (int64, error)
	UpsertIssues(ctx context.Context, issues []models.Issue) (int, error)
	UpsertBoards(ctx context.Context, boards []models.Board) (int, error)
	UpsertBoardIssues(ctx context.Context, links []models.BoardIssue) (int, error)
	UpsertIssueWorklogs(ctx context.Context, worklogs []models.IssueWorklog) (int, error)
	UpsertAccounts(ctx context.Context, accounts []models.Account) (int, error)
	UpsertSprints(ctx context.Context, sprints []models.Sprint) (int, error)
	UpsertSprintIssues(ctx context.Context, links []models.SprintIssue) (int, error)
}

// Converter drives conversion runs for one connection.
type Converter struct {
	store        Store
	connectionID int64
	baseURL      string
}

// New creates a converter for the configured connection.
func New(store Store, cfg *config.OpenProjectConfig) *Converter {
	return &Converter{
		store:        store,
		connectionID: cfg.ConnectionID,
		baseURL:      trimTrailingSlash(cfg.BaseURL),
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Run executes one full conversion pass: accounts, boards, issues, worklogs,
// board-issue links, then sprints with their links. The sprint pass is the
// only stage allowed to fail softly; everything else aborts the run with the
// kinds converted so far already committed.
func (c *Converter) Run(ctx context.Context) (*models.ConversionStats, error) {
	start := time.Now()
	stats := &models.ConversionStats{}

	if err := c.store.ValidateDomainTables(ctx); err != nil {
		return stats, fmt.Errorf("domain table validation failed: %w", err)
	}

	logging.Info().
		Int64("connection_id", c.connectionID).
		Msg("Starting domain conversion")

	var err error
	if stats.Accounts, err = c.convertAccounts(ctx); err != nil {
		return stats, fmt.Errorf("accounts conversion failed: %w", err)
	}
	if stats.Boards, err = c.convertBoards(ctx); err != nil {
		return stats, fmt.Errorf("boards conversion failed: %w", err)
	}
	if stats.Issues, err = c.convertIssues(ctx); err != nil {
		return stats, fmt.Errorf("issues conversion failed: %w", err)
	}
	if stats.Worklogs, err = c.convertWorklogs(ctx); err != nil {
		return stats, fmt.Errorf("worklogs conversion failed: %w", err)
	}
	if stats.BoardIssues, err = c.convertBoardIssues(ctx); err != nil {
		return stats, fmt.Errorf("board-issues conversion failed: %w", err)
	}

	// Sprint data only exists on installations with version tracking and the
	// tables themselves are optional, so a sprint failure must not cost the
	// run the kinds already converted. Context cancellation still aborts.
	stats.Sprints, stats.SprintIssues, err = c.convertSprints(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return stats, fmt.Errorf("sprints conversion failed: %w", err)
		}
		logging.Warn().Err(err).Msg("Sprint conversion failed, continuing without sprints")
		stats.Sprints, stats.SprintIssues = 0, 0
	}

	logging.Info().
		Int64("connection_id", c.connectionID).
		Int("total_rows", stats.Total()).
		Dur("duration", time.Since(start)).
		Msg("Domain conversion completed")

	return stats, nil
}

// replaceKind purges the connection's stale rows for one kind and upserts
// the fresh projection. The delete is keyed on the id prefix, so rows other
// tools wrote into the same table are never touched.
func replaceKind[T any](
	ctx context.Context,
	c *Converter,
	table, column, kind string,
	rows []T,
	upsert func(context.Context, []T) (int, error),
) (int, error) {
	start := time.Now()
	deleted, err := c.store.DeleteDomainRowsByPrefix(ctx, table, column, models.DomainIDPrefix(kind, c.connectionID))
	metrics.RecordDBQuery("delete", table, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	metrics.ConverterRowsDeleted.WithLabelValues(table).Add(float64(deleted))

	start = time.Now()
	written, err := upsert(ctx, rows)
	metrics.RecordDBQuery("upsert", table, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	metrics.ConverterRowsWritten.WithLabelValues(table).Add(float64(written))

	logging.Info().
		Str("table", table).
		Int("rows", written).
		Int64("stale_deleted", deleted).
		Msg("Domain kind converted")
	return written, nil
}

func (c *Converter) convertAccounts(ctx context.Context) (int, error) {
	users, err := c.store.ListToolUsers(ctx, c.connectionID)
	if err != nil {
		return 0, err
	}

	accounts := make([]models.Account, 0, len(users))
	for i := range users {
		u := &users[i]
		if u.ID == 0 {
			c.skipRow("accounts", "missing_id", "user has no native id")
			continue
		}
		accounts = append(accounts, models.Account{
			ID:        models.DomainID(models.KindUsers, u.ConnectionID, u.ID),
			Email:     u.Mail,
			FullName:  u.Name,
			UserName:  u.Login,
			AvatarURL: u.Avatar,
			Status:    mapAccountStatus(u.Status),
		})
	}

	return replaceKind(ctx, c, "accounts", "id", models.KindUsers, accounts, c.store.UpsertAccounts)
}

func (c *Converter) convertBoards(ctx context.Context) (int, error) {
	projects, err := c.store.ListToolProjects(ctx, c.connectionID)
	if err != nil {
		return 0, err
	}

	boards := make([]models.Board, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		if p.ID == 0 {
			c.skipRow("boards", "missing_id", "project has no native id")
			continue
		}
		identifier := p.Identifier
		if identifier == "" {
			identifier = strconv.FormatInt(p.ID, 10)
		}
		boards = append(boards, models.Board{
			ID:          models.DomainID(models.KindProjects, p.ConnectionID, p.ID),
			Name:        p.Name,
			Description: p.Description,
			URL:         fmt.Sprintf("%s/projects/%s", c.baseURL, identifier),
			CreatedDate: p.CreatedAt,
			Type:        models.DomainSource,
		})
	}

	return replaceKind(ctx, c, "boards", "id", models.KindProjects, boards, c.store.UpsertBoards)
}

func (c *Converter) convertIssues(ctx context.Context) (int, error) {
	wps, err := c.store.ListToolWorkPackages(ctx, c.connectionID)
	if err != nil {
		return 0, err
	}

	issues := make([]models.Issue, 0, len(wps))
	for i := range wps {
		issue, err := c.workPackageToIssue(&wps[i])
		if err != nil {
			c.skipRow("issues", "missing_id", err.Error())
			continue
		}
		issues = append(issues, *issue)
	}

	return replaceKind(ctx, c, "issues", "id", models.KindWorkPackages, issues, c.store.UpsertIssues)
}

// workPackageToIssue derives one domain issue. OriginalType/OriginalStatus
// keep the source strings with the stock defaults substituted for blanks,
// so the normalized buckets and the originals never disagree about what was
// mapped.
func (c *Converter) workPackageToIssue(wp *models.ToolWorkPackage) (*models.Issue, error) {
	if wp.ID == 0 {
		return nil, errors.New("work package has no native id")
	}

	originalType := wp.TypeName
	if originalType == "" {
		originalType = "Task"
	}
	originalStatus := wp.StatusName
	if originalStatus == "" {
		originalStatus = "New"
	}
	status := mapIssueStatus(originalStatus, wp.StatusIsClosed)

	estimated := hoursToMinutes(wp.EstimatedHours)
	spent := hoursToMinutes(wp.SpentHours)

	var resolution *time.Time
	if status == models.IssueStatusDone {
		resolution = wp.UpdatedAt
	}

	issue := &models.Issue{
		ID:          models.DomainID(models.KindWorkPackages, wp.ConnectionID, wp.ID),
		IssueKey:    fmt.Sprintf("WP-%d", wp.ID),
		URL:         fmt.Sprintf("%s/work_packages/%d", c.baseURL, wp.ID),
		Title:       wp.Subject,
		Description: wp.Description,

		Type:           mapIssueType(originalType),
		OriginalType:   originalType,
		Status:         status,
		OriginalStatus: originalStatus,

		StoryPoint:              estimated,
		OriginalEstimateMinutes: estimated,
		TimeSpentMinutes:        spent,
		TimeRemainingMinutes:    remainingMinutes(estimated, spent),
		LeadTimeMinutes:         leadTimeMinutes(wp.CreatedAt, wp.UpdatedAt),

		ResolutionDate: resolution,
		CreatedDate:    wp.CreatedAt,
		UpdatedDate:    wp.UpdatedAt,

		Priority:     wp.PriorityName,
		Severity:     wp.PriorityName,
		Component:    wp.CategoryName,
		CreatorName:  wp.AuthorName,
		AssigneeName: wp.AssigneeName,

		OriginalProject: wp.ProjectName,
	}

	if wp.ParentID != nil {
		id := models.DomainID(models.KindWorkPackages, wp.ConnectionID, *wp.ParentID)
		issue.ParentIssueID = &id
	}
	if wp.AuthorID != nil {
		id := models.DomainID(models.KindUsers, wp.ConnectionID, *wp.AuthorID)
		issue.CreatorID = &id
	}
	if wp.AssigneeID != nil {
		id := models.DomainID(models.KindUsers, wp.ConnectionID, *wp.AssigneeID)
		issue.AssigneeID = &id
	}

	return issue, nil
}

func (c *Converter) convertWorklogs(ctx context.Context) (int, error) {
	entries, err := c.store.ListToolTimeEntries(ctx, c.connectionID)
	if err != nil {
		return 0, err
	}

	worklogs := make([]models.IssueWorklog, 0, len(entries))
	for i := range entries {
		te := &entries[i]
		if te.ID == 0 {
			c.skipRow("issue_worklogs", "missing_id", "time entry has no native id")
			continue
		}

		wl := models.IssueWorklog{
			ID:               models.DomainID(models.KindTimeEntries, te.ConnectionID, te.ID),
			Comment:          te.Comment,
			TimeSpentMinutes: hoursToMinutes(te.Hours),
			LoggedDate:       te.CreatedAt,
			StartedDate:      te.SpentOn,
		}
		// Entries imported from other trackers can lack a creation timestamp;
		// the spent-on day at midnight UTC is the best remaining anchor.
		if wl.LoggedDate == nil && te.SpentOn != nil {
			if day, err := time.Parse("2006-01-02", *te.SpentOn); err == nil {
				wl.LoggedDate = &day
			}
		}
		if te.UserID != nil {
			id := models.DomainID(models.KindUsers, te.ConnectionID, *te.UserID)
			wl.AuthorID = &id
		}
		if te.WorkPackageID != nil {
			id := models.DomainID(models.KindWorkPackages, te.ConnectionID, *te.WorkPackageID)
			wl.IssueID = &id
		}
		worklogs = append(worklogs, wl)
	}

	return replaceKind(ctx, c, "issue_worklogs", "id", models.KindTimeEntries, worklogs, c.store.UpsertIssueWorklogs)
}

func (c *Converter) convertBoardIssues(ctx context.Context) (int, error) {
	wps, err := c.store.ListToolWorkPackages(ctx, c.connectionID)
	if err != nil {
		return 0, err
	}

	links := make([]models.BoardIssue, 0, len(wps))
	for i := range wps {
		wp := &wps[i]
		if wp.ID == 0 || wp.ProjectID == nil {
			continue
		}
		links = append(links, models.BoardIssue{
			BoardID: models.DomainID(models.KindProjects, wp.ConnectionID, *wp.ProjectID),
			IssueID: models.DomainID(models.KindWorkPackages, wp.ConnectionID, wp.ID),
		})
	}

	// Keyed on board_id: issue ids also appear in links other tools own, but
	// the board side is always ours.
	return replaceKind(ctx, c, "board_issues", "board_id", models.KindProjects, links, c.store.UpsertBoardIssues)
}

// convertSprints converts versions and the work-package links into them.
// Returns (sprints, sprintIssues, err); absent sprint tables are a warning
// with zero contribution, not an error.
func (c *Converter) convertSprints(ctx context.Context) (int, int, error) {
	ok, err := c.store.HasSprintTables(ctx)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		logging.Warn().Msg("Sprint tables not present, skipping sprint conversion")
		return 0, 0, nil
	}

	versions, err := c.store.ListToolVersions(ctx, c.connectionID)
	if err != nil {
		return 0, 0, err
	}

	sprints := make([]models.Sprint, 0, len(versions))
	for i := range versions {
		v := &versions[i]
		if v.ID == 0 {
			c.skipRow("sprints", "missing_id", "version has no native id")
			continue
		}

		status := mapSprintStatus(v.Status)
		sprint := models.Sprint{
			ID:          models.DomainID(models.KindVersions, v.ConnectionID, v.ID),
			Name:        v.Name,
			URL:         fmt.Sprintf("%s/versions/%d", c.baseURL, v.ID),
			Status:      status,
			StartedDate: v.CreatedAt,
			EndedDate:   v.DueDate,
		}
		if status == models.SprintStatusClosed {
			sprint.CompletedDate = v.UpdatedAt
		}
		if v.ProjectID != nil {
			id := models.DomainID(models.KindProjects, v.ConnectionID, *v.ProjectID)
			sprint.OriginalBoardID = &id
		}
		sprints = append(sprints, sprint)
	}

	written, err := replaceKind(ctx, c, "sprints", "id", models.KindVersions, sprints, c.store.UpsertSprints)
	if err != nil {
		return 0, 0, err
	}

	wps, err := c.store.ListToolWorkPackages(ctx, c.connectionID)
	if err != nil {
		return written, 0, err
	}

	links := make([]models.SprintIssue, 0)
	for i := range wps {
		wp := &wps[i]
		if wp.ID == 0 || wp.VersionID == nil {
			continue
		}
		links = append(links, models.SprintIssue{
			SprintID: models.DomainID(models.KindVersions, wp.ConnectionID, *wp.VersionID),
			IssueID:  models.DomainID(models.KindWorkPackages, wp.ConnectionID, wp.ID),
		})
	}

	linked, err := replaceKind(ctx, c, "sprint_issues", "sprint_id", models.KindVersions, links, c.store.UpsertSprintIssues)
	if err != nil {
		return written, 0, err
	}
	return written, linked, nil
}

func (c *Converter) skipRow(kind, reason, detail string) {
	logging.Warn().
		Str("kind", kind).
		Str("reason", detail).
		Msg("Skipping tool row during conversion")
	metrics.ConverterRowsSkipped.WithLabelValues(kind, reason).Inc()
}

// hoursToMinutes converts decimal hours to whole minutes, truncating toward
// zero.
func hoursToMinutes(hours *float64) *int64 {
	if hours == nil {
		return nil
	}
	m := int64(*hours * 60)
	return &m
}

// leadTimeMinutes is the whole minutes between creation and last update,
// nil unless both timestamps exist.
func leadTimeMinutes(created, updated *time.Time) *int64 {
	if created == nil || updated == nil {
		return nil
	}
	m := int64(updated.Sub(*created) / time.Minute)
	return &m
}

// remainingMinutes is max(0, estimated-spent) when both are known.
func remainingMinutes(estimated, spent *int64) *int64 {
	if estimated == nil || spent == nil {
		return nil
	}
	r := *estimated - *spent
	if r < 0 {
		r = 0
	}
	return &r
}
