package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
)

func Test_notificationApi(t *testing.T) {
	app := setup(t)

	alice := createUser(t, "Alice", "alice1", "alice@test.cd", "", []string{user.RoleUser}, true)
	bob := createUser(t, "Bob", "bobby1", "bob@test.cd", "", []string{user.RoleUser}, true)
	aliceToken := getToken(t, alice)

	ctx := context.Background()
	if err := notifSvc.Notify(ctx, alice.ID, "", notification.KindCaseStatus, "Case #1 moved from OPEN to PENDING"); err != nil {
		t.Fatalf("Notify(): %v", err)
	}
	if err := notifSvc.Notify(ctx, alice.ID, "", notification.KindCaseComment, "New comment on case #1"); err != nil {
		t.Fatalf("Notify(): %v", err)
	}
	if err := notifSvc.Notify(ctx, bob.ID, "", notification.KindCaseAssigned, "Case #2 was assigned to you"); err != nil {
		t.Fatalf("Notify(): %v", err)
	}

	getFirstID := func(t *testing.T) string {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData notification.Page
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(respData.Results) == 0 {
			t.Fatal("failed! no notifications")
		}
		return respData.Results[0].ID
	}

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/notifications")
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("list own only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var respData notification.Page
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Count != 2 {
			t.Errorf("failed! Count = %d; want 2", respData.Count)
		}
		for _, n := range respData.Results {
			if n.UserID != alice.ID {
				t.Errorf("failed! got someone else's notification %+v", n)
			}
		}
	})

	t.Run("unread count", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications/unread-count", aliceToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"unread_count": 2})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("mark one read", func(t *testing.T) {
		id := getFirstID(t)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/"+id+"/read", aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications/unread-count", aliceToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"unread_count": 1})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("cannot touch someone else's", func(t *testing.T) {
		id := getFirstID(t)
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/"+id+"/read", getToken(t, bob))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("mark all read", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/read-all", aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications/unread-count", aliceToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]int{"unread_count": 0})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("delete", func(t *testing.T) {
		id := getFirstID(t)
		req, rec := newAuthRequest(http.MethodDelete, "/v1/notifications/"+id, aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications", aliceToken)
		app.ServeHTTP(rec, req)
		var respData notification.Page
		if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
			t.Errorf("json.Unmarshal() failed! err %v", err)
		}
		if respData.Count != 1 {
			t.Errorf("failed! Count = %d; want 1", respData.Count)
		}
	})
}
