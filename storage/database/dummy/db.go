// Package dummydb provides in-memory repositories for tests and local
// development without Postgres.
package dummydb

import (
	"sync"

	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
)

type (
	DB struct {
		user         *userTable
		cases        *caseTable
		notification *notificationTable
		attachment   *attachmentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	caseTable struct {
		sync.RWMutex
		table     map[string]*cases.Case
		logs      map[string]*cases.Log
		numberSeq int
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	attachmentTable struct {
		sync.RWMutex
		table map[string]*attachment.Attachment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		cases:        &caseTable{table: make(map[string]*cases.Case), logs: make(map[string]*cases.Log)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
		attachment:   &attachmentTable{table: make(map[string]*attachment.Attachment)},
	}
	return db, nil
}
