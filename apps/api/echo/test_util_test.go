package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/account"
	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/school"
	dummymail "github.com/trezcool/shule/services/email/dummy"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

// fakeGateway stands in for the payment processor in handler tests.
type fakeGateway struct {
	mu        sync.Mutex
	verifyErr error
}

func (g *fakeGateway) Redirect(p billing.Payment) billing.Redirect {
	return billing.Redirect{
		PaymentID: p.ID,
		URL:       "https://gateway.test/eng/process",
		Fields:    map[string]string{"m_payment_id": p.ID},
	}
}

func (g *fakeGateway) Verify(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyErr
}

func (g *fakeGateway) failVerification(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

type testApp struct {
	server     Server
	conf       *core.Config
	accountSvc account.ServiceInterface
	acctRepo   account.Repository
	schoolSvc  school.ServiceInterface
	billingSvc billing.ServiceInterface
	schoolRepo school.Repository
	gateway    *fakeGateway
}

func newTestConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		AppName:   "Shule",
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func setup(t *testing.T) *testApp {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	conf := newTestConfig()
	gateway := &fakeGateway{}
	mailSvc := dummymail.NewService()
	logger := testLogger{}

	acctRepo := dummydb.NewAccountRepository(db)
	acctSvc := account.NewService(acctRepo)
	schoolRepo := dummydb.NewSchoolRepository(db)
	schoolSvc := school.NewService(schoolRepo)
	accessSvc := access.NewService(dummydb.NewAccessRepository(db), schoolSvc, mailSvc, logger)
	billingSvc := billing.NewService(dummydb.NewBillingRepository(db), gateway, mailSvc, logger)

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		AccountSvc: acctSvc,
		SchoolSvc:  schoolSvc,
		AccessSvc:  accessSvc,
		BillingSvc: billingSvc,
		Validate:   validate,
		Translator: translator,
	})

	return &testApp{
		server:     server,
		conf:       conf,
		accountSvc: acctSvc,
		acctRepo:   acctRepo,
		schoolSvc:  schoolSvc,
		billingSvc: billingSvc,
		schoolRepo: schoolRepo,
		gateway:    gateway,
	}
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (app *testApp) createAccount(t *testing.T, name, email, role, pwd string, isActive bool) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acct := account.Account{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := acct.SetPassword(pwd); err != nil {
			t.Fatalf("createAccount() failed: %v", err)
		}
	}
	acct, err := app.acctRepo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("createAccount() failed: %v", err)
	}
	return acct
}

func (app *testApp) createSchool(t *testing.T, name string) school.School {
	t.Helper()
	sch, err := app.schoolRepo.CreateSchool(context.Background(), school.School{Name: name, Grades: []string{"1"}})
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	return sch
}

func (app *testApp) createDebtor(t *testing.T, schoolID, guardianEmail string, balanceCents int64) billing.DebtorAccount {
	t.Helper()
	debtor, err := app.billingSvc.CreateDebtor(context.Background(), billing.NewDebtor{
		SchoolID:      schoolID,
		GuardianEmail: guardianEmail,
		StudentRef:    "STU-001",
		OpeningCents:  balanceCents,
	})
	if err != nil {
		t.Fatalf("createDebtor() failed: %v", err)
	}
	return debtor
}

func (app *testApp) getToken(t *testing.T, acct account.Account) string {
	t.Helper()
	token, err := GenerateToken(app.conf, GetAccountClaims(app.conf, acct))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
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

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
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
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %s; wantData %s", rec.Body.String(), tt.wantData)
	}
}
