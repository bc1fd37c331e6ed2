package dummydb

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/cases"
)

type caseRepository struct {
	db *DB
}

var _ cases.Repository = (*caseRepository)(nil) // interface compliance check

func NewCaseRepository(db *DB) cases.Repository {
	return &caseRepository{db: db}
}

func (repo *caseRepository) query() []cases.Case {
	results := make([]cases.Case, 0, len(repo.db.cases.table))
	for _, c := range repo.db.cases.table {
		results = append(results, *c)
	}
	return results
}

func (repo *caseRepository) CreateCase(_ context.Context, c cases.Case, _ ...core.DBExecutor) (cases.Case, error) {
	repo.db.cases.Lock()
	defer repo.db.cases.Unlock()

	repo.db.cases.numberSeq++
	c.ID = uuid.New().String()
	c.Number = repo.db.cases.numberSeq
	repo.db.cases.table[c.ID] = &c
	return c, nil
}

func matchCase(c cases.Case, filter *cases.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(c.Title), search) ||
			strings.Contains(strings.ToLower(c.Description), search) ||
			strings.Contains(strconv.Itoa(c.Number), filter.Search)) {
			return false
		}
	}
	if len(filter.Statuses) > 0 && !containsString(filter.Statuses, c.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsString(filter.Priorities, c.Priority) {
		return false
	}
	if filter.AssignedTo != "" && !c.IsAssignedTo(filter.AssignedTo) {
		return false
	}
	if filter.CreatedBy != "" && !c.IsCreatedBy(filter.CreatedBy) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && c.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && c.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	if filter.VisibleTo != "" && !(c.IsCreatedBy(filter.VisibleTo) || c.IsAssignedTo(filter.VisibleTo)) {
		return false
	}
	return true
}

func containsString(vals []string, val string) bool {
	for _, v := range vals {
		if v == val {
			return true
		}
	}
	return false
}

func (repo *caseRepository) QueryCases(_ context.Context, filter *cases.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, _ ...core.DBExecutor) ([]cases.Case, int, error) {
	repo.db.cases.RLock()
	defer repo.db.cases.RUnlock()

	var results []cases.Case
	for _, c := range repo.query() {
		if filter == nil || filter.IsEmpty() || matchCase(c, filter) {
			results = append(results, c)
		}
	}
	count := len(results)

	sortCases(results, ordering)

	if page != nil {
		lo := page.Offset()
		if lo > count {
			lo = count
		}
		hi := lo + page.Limit()
		if hi > count {
			hi = count
		}
		results = results[lo:hi]
	}
	return results, count, nil
}

func sortCases(results []cases.Case, ordering []core.DBOrdering) {
	ord := core.DBOrdering{Field: "created_at"} // newest first
	if len(ordering) > 0 {
		ord = ordering[0]
	}
	sort.SliceStable(results, func(i, j int) bool {
		var less bool
		switch ord.Field {
		case "number":
			less = results[i].Number < results[j].Number
		case "title":
			less = results[i].Title < results[j].Title
		case "priority":
			less = results[i].Priority < results[j].Priority
		case "status":
			less = results[i].Status < results[j].Status
		case "updated_at":
			less = results[i].UpdatedAt.Before(results[j].UpdatedAt)
		default:
			less = results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
}

func (repo *caseRepository) GetCase(_ context.Context, id string, _ ...core.DBExecutor) (cases.Case, error) {
	repo.db.cases.RLock()
	defer repo.db.cases.RUnlock()

	if c, ok := repo.db.cases.table[id]; ok {
		return *c, nil
	}
	return cases.Case{}, cases.ErrNotFound
}

func (repo *caseRepository) UpdateCase(_ context.Context, c cases.Case, _ ...core.DBExecutor) (cases.Case, error) {
	repo.db.cases.Lock()
	defer repo.db.cases.Unlock()

	if _, ok := repo.db.cases.table[c.ID]; !ok {
		return cases.Case{}, cases.ErrNotFound
	}
	repo.db.cases.table[c.ID] = &c
	return c, nil
}

func (repo *caseRepository) DeleteCasesByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.cases.Lock()
	defer repo.db.cases.Unlock()
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()
	repo.db.attachment.Lock()
	defer repo.db.attachment.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.cases.table[id]; ok {
			delete(repo.db.cases.table, id)
			n++
		}
		// the Postgres schema cascades these rows via FKs
		for logID, l := range repo.db.cases.logs {
			if l.CaseID == id {
				delete(repo.db.cases.logs, logID)
			}
		}
		for notifID, notif := range repo.db.notification.table {
			if notif.CaseID != nil && *notif.CaseID == id {
				delete(repo.db.notification.table, notifID)
			}
		}
		for atID, at := range repo.db.attachment.table {
			if at.CaseID == id {
				delete(repo.db.attachment.table, atID)
			}
		}
	}
	return n, nil
}

func (repo *caseRepository) CreateLog(_ context.Context, l cases.Log, _ ...core.DBExecutor) (cases.Log, error) {
	repo.db.cases.Lock()
	defer repo.db.cases.Unlock()

	l.ID = uuid.New().String()
	repo.db.cases.logs[l.ID] = &l
	return l, nil
}

func (repo *caseRepository) QueryLogs(_ context.Context, caseID string, _ ...core.DBExecutor) ([]cases.Log, error) {
	repo.db.cases.RLock()
	defer repo.db.cases.RUnlock()

	var logs []cases.Log
	for _, l := range repo.db.cases.logs {
		if l.CaseID == caseID {
			logs = append(logs, *l)
		}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}
