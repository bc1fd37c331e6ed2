// Package sqlxrepos implements the domain repositories on top of sqlx/Postgres.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/mashauri/core"
)

// getExec picks the service-provided executor (a transaction) over the
// repository default.
func getExec(dflt core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return dflt
}

// validIDs drops values that do not parse as uuids; Postgres would fail the
// whole statement on a bad uuid cast.
func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

// orderBy renders an ORDER BY clause from orderings whose fields appear in the
// allowed column map; unknown fields are dropped.
func orderBy(ordering []core.DBOrdering, allowed map[string]string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(orderList) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}
