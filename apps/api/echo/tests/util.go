package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/mashauri/apps/api/echo"
	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
	emailsvc "github.com/trezcool/mashauri/services/email"
	logsvc "github.com/trezcool/mashauri/services/logger"
	dummydb "github.com/trezcool/mashauri/storage/database/dummy"
	filestore "github.com/trezcool/mashauri/storage/files"
)

var (
	usrRepo  user.Repository
	caseSvc  cases.Service
	notifSvc notification.Service
	attSvc   attachment.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func setup(t *testing.T) Server {
	core.Conf.Debug = false
	core.Conf.TestMode = true

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open(): %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	caseRepo := dummydb.NewCaseRepository(db)
	notifRepo := dummydb.NewNotificationRepository(db)
	attRepo := dummydb.NewAttachmentRepository(db)

	store, err := filestore.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.NewLocalStorage(): %v", err)
	}

	// set up services
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), core.Conf)
	logger.Enable(false)
	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc := user.NewServiceMock(nil, usrRepo, mailSvc, core.Conf)
	notifSvc = notification.NewService(notifRepo)
	caseSvc = cases.NewService(nil, caseRepo, usrRepo, notifSvc, mailSvc, attRepo, store)
	attSvc = attachment.NewService(attRepo, store)

	// set up server
	return NewServer(
		ServerDeps{
			Logger:         logger,
			UserSvc:        usrSvc,
			CaseSvc:        caseSvc,
			NotifSvc:       notifSvc,
			AttachmentSvc:  attSvc,
			DisableReqLogs: true,
		},
	)
}

func createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	usr := user.User{
		Name:     name,
		Username: uname,
		Email:    email,
		Roles:    roles,
	}
	usr.SetActive(isActive)
	if pwd == "" {
		pwd = "Password123!"
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}

	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func createCase(t *testing.T, creator user.User, title string) cases.Case {
	t.Helper()

	c, err := caseSvc.Create(context.Background(), creator, cases.NewCase{
		Title:    title,
		Priority: cases.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("caseSvc.Create(): %v", err)
	}
	return c
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func boolPtr(b bool) *bool { return &b }
