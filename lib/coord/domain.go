package coord

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ValentinKolb/dCoord/lib/integrity"
	"github.com/ValentinKolb/dCoord/lib/table"
)

// Table names of the records the coordinator protects.
const (
	TableProjects      = "Projects"
	TableTasks         = "Tasks"
	TableTaskTemplates = "TaskTemplates"
	TableAssignments   = "Assignments"
)

// SentinelFolder marks a project whose folder could not be provisioned.
const SentinelFolder = "ERROR_DRIVE"

// Schema lists the expected columns of every table.
var Schema = map[string][]string{
	TableProjects:      {"id", "name", "client", "type", "startDate", "status", "folderId", "folderUrl", "active", "lastModified"},
	TableTasks:         {"id", "projectId", "name", "phase", "position", "dueDate", "done", "createdAt"},
	TableTaskTemplates: {"projectType", "name", "phase", "position", "offsetDays"},
	TableAssignments:   {"id", "projectId", "assignee", "role", "createdAt"},
}

// Relations are the parent/child relations checked before persisting.
func Relations() []integrity.Relation {
	return []integrity.Relation{
		{Child: TableTasks, ChildColumn: "projectId", Parent: TableProjects, ParentColumn: "id"},
		{Child: TableAssignments, ChildColumn: "projectId", Parent: TableProjects, ParentColumn: "id"},
	}
}

// SchemaCreator is implemented by table stores that can create tables.
type SchemaCreator interface {
	CreateTable(name string, columns ...string) error
}

// EnsureSchema creates all tables and columns of Schema.
func EnsureSchema(s SchemaCreator) error {
	names := make([]string, 0, len(Schema))
	for name := range Schema {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.CreateTable(name, Schema[name]...); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Project is the versioned record guarded by the coordinator.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Client       string    `json:"client"`
	Type         string    `json:"type"`
	StartDate    string    `json:"startDate"`
	Status       string    `json:"status"`
	FolderID     string    `json:"folderId"`
	FolderURL    string    `json:"folderUrl"`
	Active       bool      `json:"active"`
	LastModified time.Time `json:"lastModified"`
}

// NeedsRemediation reports whether folder provisioning failed for p.
func NeedsRemediation(p Project) bool {
	return p.FolderID == SentinelFolder
}

// FolderName is the name of the project folder below the file store root.
func (p Project) FolderName() string {
	return fmt.Sprintf("%s [%s]", p.Name, p.ID)
}

type Task struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Phase     string    `json:"phase"`
	Position  int       `json:"position"`
	DueDate   string    `json:"dueDate"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

type TaskTemplate struct {
	ProjectType string `json:"projectType"`
	Name        string `json:"name"`
	Phase       string `json:"phase"`
	Position    int    `json:"position"`
	OffsetDays  int    `json:"offsetDays"`
}

type Assignment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Assignee  string    `json:"assignee"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultTemplates is the task list seeded into an empty TaskTemplates table.
func DefaultTemplates() []TaskTemplate {
	out := make([]TaskTemplate, 0)
	add := func(projectType string, tasks ...[3]string) {
		for i, t := range tasks {
			offset, _ := strconv.Atoi(t[2])
			out = append(out, TaskTemplate{ProjectType: projectType, Name: t[0], Phase: t[1], Position: i + 1, OffsetDays: offset})
		}
	}
	add("standard",
		[3]string{"Kickoff meeting", "Initiation", "0"},
		[3]string{"Requirements review", "Initiation", "7"},
		[3]string{"Draft delivery", "Execution", "30"},
		[3]string{"Client feedback", "Execution", "40"},
		[3]string{"Final delivery", "Closing", "60"},
	)
	add("express",
		[3]string{"Kickoff call", "Initiation", "0"},
		[3]string{"Delivery", "Execution", "14"},
	)
	return out
}

// --------------------------------------------------------------------------
// Row conversion
// --------------------------------------------------------------------------

func projectToRow(p Project) table.Row {
	return table.Row{
		"id":           p.ID,
		"name":         p.Name,
		"client":       p.Client,
		"type":         p.Type,
		"startDate":    p.StartDate,
		"status":       p.Status,
		"folderId":     p.FolderID,
		"folderUrl":    p.FolderURL,
		"active":       table.FormatBool(p.Active),
		"lastModified": table.FormatTime(p.LastModified),
	}
}

func projectFromRow(r table.Row) (Project, error) {
	active, err := table.ParseBool(r["active"])
	if err != nil {
		return Project{}, fmt.Errorf("project %s: active: %w", r["id"], err)
	}
	lm, err := table.ParseTime(r["lastModified"])
	if err != nil {
		return Project{}, fmt.Errorf("project %s: lastModified: %w", r["id"], err)
	}
	return Project{
		ID:           r["id"],
		Name:         r["name"],
		Client:       r["client"],
		Type:         r["type"],
		StartDate:    r["startDate"],
		Status:       r["status"],
		FolderID:     r["folderId"],
		FolderURL:    r["folderUrl"],
		Active:       active,
		LastModified: lm,
	}, nil
}

func taskToRow(t Task) table.Row {
	return table.Row{
		"id":        t.ID,
		"projectId": t.ProjectID,
		"name":      t.Name,
		"phase":     t.Phase,
		"position":  strconv.Itoa(t.Position),
		"dueDate":   t.DueDate,
		"done":      table.FormatBool(t.Done),
		"createdAt": table.FormatTime(t.CreatedAt),
	}
}

func taskFromRow(r table.Row) (Task, error) {
	pos, err := atoi(r["position"])
	if err != nil {
		return Task{}, fmt.Errorf("task %s: position: %w", r["id"], err)
	}
	done, err := table.ParseBool(r["done"])
	if err != nil {
		return Task{}, fmt.Errorf("task %s: done: %w", r["id"], err)
	}
	created, err := table.ParseTime(r["createdAt"])
	if err != nil {
		return Task{}, fmt.Errorf("task %s: createdAt: %w", r["id"], err)
	}
	return Task{
		ID:        r["id"],
		ProjectID: r["projectId"],
		Name:      r["name"],
		Phase:     r["phase"],
		Position:  pos,
		DueDate:   r["dueDate"],
		Done:      done,
		CreatedAt: created,
	}, nil
}

func templateFromRow(r table.Row) (TaskTemplate, error) {
	pos, err := atoi(r["position"])
	if err != nil {
		return TaskTemplate{}, fmt.Errorf("template %s: position: %w", r["name"], err)
	}
	offset, err := atoi(r["offsetDays"])
	if err != nil {
		return TaskTemplate{}, fmt.Errorf("template %s: offsetDays: %w", r["name"], err)
	}
	return TaskTemplate{
		ProjectType: r["projectType"],
		Name:        r["name"],
		Phase:       r["phase"],
		Position:    pos,
		OffsetDays:  offset,
	}, nil
}

func templateToRow(t TaskTemplate) table.Row {
	return table.Row{
		"projectType": t.ProjectType,
		"name":        t.Name,
		"phase":       t.Phase,
		"position":    strconv.Itoa(t.Position),
		"offsetDays":  strconv.Itoa(t.OffsetDays),
	}
}

func assignmentToRow(a Assignment) table.Row {
	return table.Row{
		"id":        a.ID,
		"projectId": a.ProjectID,
		"assignee":  a.Assignee,
		"role":      a.Role,
		"createdAt": table.FormatTime(a.CreatedAt),
	}
}

func assignmentFromRow(r table.Row) (Assignment, error) {
	created, err := table.ParseTime(r["createdAt"])
	if err != nil {
		return Assignment{}, fmt.Errorf("assignment %s: createdAt: %w", r["id"], err)
	}
	return Assignment{
		ID:        r["id"],
		ProjectID: r["projectId"],
		Assignee:  r["assignee"],
		Role:      r["role"],
		CreatedAt: created,
	}, nil
}

// SeedTemplates writes templates if the TaskTemplates table is empty.
func SeedTemplates(s table.IStore, templates []TaskTemplate) (bool, error) {
	t, err := s.ReadTable(TableTaskTemplates)
	if err != nil {
		return false, err
	}
	if len(t.Rows) > 0 {
		return false, nil
	}
	rows := make([]table.Row, len(templates))
	for i, tpl := range templates {
		rows[i] = templateToRow(tpl)
	}
	_, err = table.ReplaceWhere(s, TableTaskTemplates, nil, rows)
	return err == nil, err
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
