package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/amazon-crawler/pkg/export"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
)

// handleListTasks handles the list_tasks tool
func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now()
	statuses := s.cfg.Scheduler.Status(now)

	tasks := make([]map[string]interface{}, 0, len(statuses))
	for _, st := range statuses {
		info := map[string]interface{}{
			"name":         st.Name,
			"label":        st.Label,
			"priority":     st.Priority,
			"tier":         st.Tier,
			"period":       st.Period,
			"window_start": st.Start.Format(time.RFC3339),
			"window_end":   st.End.Format(time.RFC3339),
			"dead_time":    st.DeadTime.Format(time.RFC3339),
			"active":       st.Active,
			"expired":      st.Expired,
		}
		if st.FileName != "" {
			info["seed_file"] = st.FileName
			info["next_run"] = st.NextRun.Format(time.RFC3339)
		}
		if !st.NeverRun {
			info["last_run"] = st.LastRun.LastRun.Format(time.RFC3339)
			info["last_enqueued"] = st.LastRun.Enqueued
			if st.LastRun.LastError != "" {
				info["last_error"] = st.LastRun.LastError
			}
		}
		if s.jobManager.IsRunning(st.Name) {
			info["status"] = "seeding"
		}
		tasks = append(tasks, info)
	}

	result := map[string]interface{}{
		"tasks":       tasks,
		"config_path": s.cfg.ConfigPath,
		"total_tasks": len(tasks),
		"evaluated":   now.Format(time.RFC3339),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleClassifyURL handles the classify_url tool
func (s *Server) handleClassifyURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	normalized, _, err := parse.ParseAndNormalize(urlStr, s.cfg.AppConfig.Links.DropParams...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}

	var doc *parse.Document
	if html := request.GetString("html", ""); html != "" {
		doc, err = parse.ParseDocument(normalized, []byte(html))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse HTML: %v", err)), nil
		}
	}

	t := traits.Classify(normalized, doc)
	result := map[string]interface{}{
		"url":          normalized,
		"is_amazon":    traits.IsAmazon(normalized),
		"kind":         t.Kind.String(),
		"traits":       t.String(),
		"product_page": traits.IsProductPage(normalized),
	}
	if t.ASIN != "" {
		result["asin"] = t.ASIN
	}
	switch t.Kind {
	case traits.KindLabeledPortal:
		result["portal_label"] = t.PortalLabel
		result["primary_portal"] = t.IsPrimaryPortal
		result["tasks"] = taskNames(task.ByLabel(t.PortalLabel))
	case traits.KindPrimaryReview, traits.KindSecondaryReview:
		result["review_page"] = traits.ReviewPageNumber(normalized)
		result["tasks"] = taskNames(task.ByLabel(task.LabelReview))
	case traits.KindItem:
		result["tasks"] = taskNames(task.ByLabel(task.LabelASIN))
	case traits.KindOther:
	}

	if doc != nil {
		page := &models.Page{URL: normalized}
		state := s.gate.Check(page, doc, "classify_url")
		result["relevance"] = map[string]interface{}{
			"code":    state.Code,
			"message": state.Message,
			"ok":      state.IsOK(),
		}
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

func taskNames(defs []task.Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// handleQueueStatus handles the queue_status tool
func (s *Server) handleQueueStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"total_queued": s.cfg.Pool.Len(),
		"tiers":        s.cfg.Pool.Stats(),
	}
	if s.cfg.Registry != nil {
		result["counters"] = s.cfg.Registry.Snapshot()
		if labels := s.cfg.Registry.Labels(); len(labels) > 0 {
			result["labels"] = labels
		}
	}
	if s.cfg.Status != nil {
		recent := s.cfg.Status.Recent()
		const maxRecent = 20
		if len(recent) > maxRecent {
			recent = recent[len(recent)-maxRecent:]
		}
		result["recent_reports"] = recent
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSeedTask handles the seed_task tool
func (s *Server) handleSeedTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("task", "")
	if name == "" {
		return mcp.NewToolResultError("task parameter is required"), nil
	}

	var target *task.Schedulable
	available := make([]string, 0)
	for _, t := range s.cfg.Scheduler.Tasks() {
		if t.FileName == "" {
			continue
		}
		available = append(available, t.Name)
		if strings.EqualFold(t.Name, name) {
			target = &t
		}
	}
	if target == nil {
		return mcp.NewToolResultError(fmt.Sprintf("task '%s' has no seeds or is not scheduled. Seedable tasks: %v", name, available)), nil
	}

	if s.jobManager.IsRunning(target.Name) {
		existing := s.jobManager.GetJobByTask(target.Name)
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "Seeding is already in progress for this task",
			"job_id":  existing.ID,
			"task":    target.Name,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	job := s.jobManager.CreateJob(target.Name)
	go s.runSeedJob(job.ID, target.Name)

	result := map[string]interface{}{
		"status":  "started",
		"message": "Seeding started",
		"job_id":  job.ID,
		"task":    target.Name,
		"tier":    target.Tier(),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runSeedJob seeds a task in the background
func (s *Server) runSeedJob(jobID, taskName string) {
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(jobID)

	run, err := s.cfg.Scheduler.SeedNow(jobCtx, taskName)
	s.jobManager.UpdateProgress(jobID, run.SeedCount, run.Enqueued)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.Canceled) {
			s.jobManager.UpdateStatus(jobID, JobStatusCancelled, "")
			return
		}
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, err.Error())
		return
	}
	s.jobManager.UpdateStatus(jobID, JobStatusCompleted, "")
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job := s.jobManager.GetJob(jobID)
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"task":       job.TaskName,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"seed_count": job.SeedCount,
		"enqueued":   job.Enqueued,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchExported handles the search_exported tool
func (s *Server) handleSearchExported(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	label := task.CanonicalLabel(request.GetString("label", ""))
	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	results, err := s.searchExports(ctx, query, label, maxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	if label != "" {
		response["label"] = label
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchExports scans exported documents for rows with a field containing query
func (s *Server) searchExports(ctx context.Context, query, label string, maxResults int) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, 0)
	root := export.DocumentsDir(s.cfg.AppConfig.ExportDir)
	labels, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return results, nil
		}
		return nil, err
	}
	queryLower := strings.ToLower(query)

	for _, dir := range labels {
		if !dir.IsDir() || (label != "" && dir.Name() != label) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, dir.Name()))
		if err != nil {
			continue
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, f := range files {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if len(results) >= maxResults {
				return results, nil
			}
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(root, dir.Name(), f.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var rows []map[string]*string
			if err := parseExportDocument(data, &rows); err != nil {
				continue
			}
			for _, row := range rows {
				field, value, ok := matchRow(row, queryLower)
				if !ok {
					continue
				}
				results = append(results, map[string]interface{}{
					"file":        path,
					"label":       dir.Name(),
					"asin":        derefOr(row["asin"], ""),
					"title":       derefOr(row["title"], ""),
					"match_field": field,
					"snippet":     extractSnippet(value, query, 150),
				})
				break
			}
		}
	}
	return results, nil
}

// matchRow returns the first field, in name order, whose value contains queryLower
func matchRow(row map[string]*string, queryLower string) (string, string, bool) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := row[k]
		if v != nil && strings.Contains(strings.ToLower(*v), queryLower) {
			return k, *v, true
		}
	}
	return "", "", false
}

func derefOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// handleExtractHTML handles the extract_html tool
func (s *Server) handleExtractHTML(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	html := request.GetString("html", "")
	if urlStr == "" || html == "" {
		return mcp.NewToolResultError("url and html parameters are required"), nil
	}
	normalized, _, err := parse.ParseAndNormalize(urlStr, s.cfg.AppConfig.Links.DropParams...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}
	doc, err := parse.ParseDocument(normalized, []byte(html))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse HTML: %v", err)), nil
	}

	page := &models.Page{
		URL:       normalized,
		Label:     task.CanonicalLabel(request.GetString("label", "")),
		FetchedAt: time.Now(),
	}
	out, err := s.cfg.Pipeline.Process(ctx, page, doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed at %s: %v", out.Stage, err)), nil
	}

	result := map[string]interface{}{
		"url":       normalized,
		"stage":     out.Stage.String(),
		"outcome":   out.LoadOutcome().String(),
		"relevance": out.State.String(),
	}
	if out.Row != nil {
		result["row"] = out.Row.ToEntity()
		result["traits"] = out.Traits.String()
		result["links"] = map[string]int{
			"enqueued":   out.Links.Enqueued,
			"rejected":   out.Links.Rejected,
			"disallowed": out.Links.Disallowed,
		}
	}
	if out.ExportPath != "" {
		result["export_path"] = out.ExportPath
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}
	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// parseExportDocument parses an exported JSON document: an array of row objects
func parseExportDocument(data []byte, rows *[]map[string]*string) error {
	return json.Unmarshal(data, rows)
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
