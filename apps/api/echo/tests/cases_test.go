package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/user"
)

func Test_caseApi_caseCreate(t *testing.T) {
	app := setup(t)

	plain := createUser(t, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleUser}, true)
	plainToken := getToken(t, plain)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "title required", token: plainToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, cases.NewCase{Description: "no title"}),
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "invalid priority", token: plainToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, cases.NewCase{Title: "Leaking roof", Priority: "WHENEVER"}),
			wantData: marchallObj(t, map[string]string{"priority": "priority must be one of [LOW MEDIUM HIGH URGENT]"}),
		},
		{name: "case created", token: plainToken, wantCode: http.StatusCreated, body: marchallObj(t, cases.NewCase{Title: "Leaking roof"})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/cases"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData cases.Case
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Status != cases.StatusOpen || respData.Number == 0 || respData.CreatedBy != plain.ID {
					t.Errorf("failed! unexpected created case %+v", respData)
				}
				if respData.Priority != cases.PriorityMedium { // default
					t.Errorf("failed! Priority = %q; want %q", respData.Priority, cases.PriorityMedium)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_caseApi_caseQuery(t *testing.T) {
	app := setup(t)

	manager := createUser(t, "Manager", "manage", "manage@test.cd", "", []string{user.RoleManager}, true)
	alice := createUser(t, "Alice", "alice1", "alice@test.cd", "", []string{user.RoleUser}, true)
	bob := createUser(t, "Bob", "bobby1", "bob@test.cd", "", []string{user.RoleUser}, true)

	c1 := createCase(t, alice, "Leaking roof")
	c2 := createCase(t, alice, "Broken window")
	c3 := createCase(t, bob, "Power outage")

	page := func(count int, results ...interface{}) []byte {
		objs := make([]cases.Case, 0, len(results))
		for _, r := range results {
			objs = append(objs, r.(cases.Case))
		}
		return marchallObj(t, cases.Page{Results: objs, Count: count, Page: 1, PageSize: 20})
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/cases", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "manager sees all", path: "/v1/cases?ordering=created_at", token: getToken(t, manager), wantData: page(3, c1, c2, c3)},
		{name: "creator sees own", path: "/v1/cases?ordering=created_at", token: getToken(t, alice), wantData: page(2, c1, c2)},
		{name: "search", path: "/v1/cases?search=roof", token: getToken(t, manager), wantData: page(1, c1)},
		{name: "status filter (empty)", path: "/v1/cases?status=CLOSED", token: getToken(t, manager), wantData: page(0)},
		{name: "created_by filter", path: "/v1/cases?created_by=" + bob.ID, token: getToken(t, manager), wantData: page(1, c3)},
		{name: "pagination", path: "/v1/cases?ordering=created_at&page=2&page_size=2", token: getToken(t, manager), extra: true},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.extra != nil { // pagination window
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData cases.Page
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Count != 3 || respData.Page != 2 || respData.PageSize != 2 || len(respData.Results) != 1 {
					t.Errorf("failed! unexpected page %+v", respData)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_caseApi_caseWorkflow(t *testing.T) {
	app := setup(t)

	manager := createUser(t, "Manager", "manage", "manage@test.cd", "", []string{user.RoleManager}, true)
	alice := createUser(t, "Alice", "alice1", "alice@test.cd", "", []string{user.RoleUser}, true)
	bob := createUser(t, "Bob", "bobby1", "bob@test.cd", "", []string{user.RoleUser}, true)
	stranger := createUser(t, "Eve", "evil01", "eve@test.cd", "", []string{user.RoleUser}, true)

	managerToken := getToken(t, manager)
	aliceToken := getToken(t, alice)
	bobToken := getToken(t, bob)

	c := createCase(t, alice, "Leaking roof")
	base := "/v1/cases/" + c.ID

	do := func(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
		t.Helper()
		req, rec := newAuthRequest(method, path, token, body)
		app.ServeHTTP(rec, req)
		return rec
	}
	transition := func(status string) []byte {
		return marchallObj(t, cases.TransitionCase{Status: status})
	}

	t.Run("hidden from strangers", func(t *testing.T) {
		rec := do(t, http.MethodGet, base, getToken(t, stranger), nil)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "case not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("assign requires staff", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/assign", aliceToken, marchallObj(t, cases.AssignCase{AssigneeID: bob.ID}))
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("manager assigns", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/assign", managerToken, marchallObj(t, cases.AssignCase{AssigneeID: bob.ID}))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData cases.Case
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Status != cases.StatusPending || respData.AssignedTo == nil || *respData.AssignedTo != bob.ID {
			t.Errorf("failed! unexpected case %+v", respData)
		}
	})

	t.Run("assignee gets notified", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/v1/notifications/unread-count", bobToken, nil)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"unread_count": 1})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("only assignee accepts", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/transition", aliceToken, transition(cases.StatusInProgress))
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("assignee accepts", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/transition", bobToken, transition(cases.StatusInProgress))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid transition", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/transition", bobToken, transition(cases.StatusCompleted))
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "cannot move from IN_PROGRESS to COMPLETED"}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("comment", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/logs", aliceToken, marchallObj(t, cases.NewComment{Message: "any update?"}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData cases.Log
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Kind != cases.LogComment || respData.AuthorID != alice.ID {
			t.Errorf("failed! unexpected log %+v", respData)
		}
	})

	t.Run("activity trail", func(t *testing.T) {
		rec := do(t, http.MethodGet, base+"/logs", aliceToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData []cases.Log
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if len(respData) != 3 { // assignment + status + comment
			t.Errorf("failed! len(logs) = %d; want 3", len(respData))
		}
	})

	t.Run("review and complete", func(t *testing.T) {
		rec := do(t, http.MethodPost, base+"/transition", bobToken, transition(cases.StatusPendingCompletionReview))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		// assignee cannot approve their own work
		rec = do(t, http.MethodPost, base+"/transition", bobToken, transition(cases.StatusCompleted))
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)

		rec = do(t, http.MethodPost, base+"/transition", managerToken, transition(cases.StatusCompleted))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData cases.Case
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Status != cases.StatusCompleted || respData.ClosedAt == nil {
			t.Errorf("failed! unexpected case %+v", respData)
		}
	})

	t.Run("delete requires admin", func(t *testing.T) {
		rec := do(t, http.MethodDelete, base, managerToken, nil)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})
}

func newUploadRequest(t *testing.T, path, token, filename, content string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile(): %v", err)
	}
	if _, err = fw.Write([]byte(content)); err != nil {
		t.Fatalf("fw.Write(): %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("w.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	return req, rec
}

func Test_caseApi_caseAttachments(t *testing.T) {
	app := setup(t)

	manager := createUser(t, "Manager", "manage", "manage@test.cd", "", []string{user.RoleManager}, true)
	alice := createUser(t, "Alice", "alice1", "alice@test.cd", "", []string{user.RoleUser}, true)
	stranger := createUser(t, "Eve", "evil01", "eve@test.cd", "", []string{user.RoleUser}, true)

	aliceToken := getToken(t, alice)

	c := createCase(t, alice, "Leaking roof")
	other := createCase(t, stranger, "Unrelated")
	base := "/v1/cases/" + c.ID + "/attachments"

	var uploaded attachment.Attachment

	t.Run("upload", func(t *testing.T) {
		req, rec := newUploadRequest(t, base, aliceToken, "report.txt", "water damage report")
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &uploaded); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if uploaded.Filename != "report.txt" || uploaded.Size != int64(len("water damage report")) || uploaded.UploadedBy != alice.ID {
			t.Errorf("failed! unexpected attachment %+v", uploaded)
		}
	})

	t.Run("file is required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, base, aliceToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": "this field is required"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base, aliceToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallList(t, uploaded)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("hidden from strangers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base, getToken(t, stranger))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "case not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("download", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base+"/"+uploaded.ID+"/download", aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		data, err := io.ReadAll(rec.Body)
		if err != nil {
			t.Fatalf("reading body: %v", err)
		}
		if string(data) != "water damage report" {
			t.Errorf("failed! body = %q", string(data))
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="report.txt"` {
			t.Errorf("failed! Content-Disposition = %q", cd)
		}
	})

	t.Run("cross-case attachment IDs are rejected", func(t *testing.T) {
		path := "/v1/cases/" + other.ID + "/attachments/" + uploaded.ID + "/download"
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, stranger))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attachment not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("only uploader or staff may delete", func(t *testing.T) {
		// a stranger cannot even see the case
		req, rec := newAuthRequest(http.MethodDelete, base+"/"+uploaded.ID, getToken(t, stranger))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "case not found"})}
		checkCodeAndData(t, tt, rec)

		req, rec = newAuthRequest(http.MethodDelete, base+"/"+uploaded.ID, getToken(t, manager))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("failed! code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		req, rec = newAuthRequest(http.MethodGet, base, aliceToken)
		app.ServeHTTP(rec, req)
		ttEmpty := httpTest{wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...)}
		checkCodeAndData(t, ttEmpty, rec)
	})
}

func Test_caseApi_uploadSizeLimit(t *testing.T) {
	app := setup(t)

	origMaxSize := core.Conf.Uploads.MaxSize
	core.Conf.Uploads.MaxSize = 10
	defer func() { core.Conf.Uploads.MaxSize = origMaxSize }()

	alice := createUser(t, "Alice", "alice1", "alice@test.cd", "", []string{user.RoleUser}, true)
	aliceToken := getToken(t, alice)
	c := createCase(t, alice, "Leaking roof")
	base := "/v1/cases/" + c.ID + "/attachments"

	t.Run("oversized upload is rejected", func(t *testing.T) {
		req, rec := newUploadRequest(t, base, aliceToken, "report.txt", strings.Repeat("a", 64))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusRequestEntityTooLarge, wantData: marchallObj(t, httpErr{Error: "file too large"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("upload within the limit passes", func(t *testing.T) {
		req, rec := newUploadRequest(t, base, aliceToken, "note.txt", "all good")
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Errorf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}
