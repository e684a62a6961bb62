package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/account"
)

func Test_accessApi_querySchools(t *testing.T) {
	app := setup(t)

	sch1 := app.createSchool(t, "Acacia Primary")
	sch2 := app.createSchool(t, "Baobab High")
	guardian := app.createAccount(t, "Guardian", "parent@test.cd", account.RoleGuardian, "pwd", true)
	token := app.getToken(t, guardian)

	t.Run("anonymous", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/schools")
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("lists schools", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/schools", token)
		app.server.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, []interface{}{sch1, sch2})}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_accessApi_evaluateAndSubmit(t *testing.T) {
	app := setup(t)

	sch := app.createSchool(t, "Acacia Primary")
	guardian := app.createAccount(t, "Guardian", "parent@test.cd", account.RoleGuardian, "pwd", true)
	admin := app.createAccount(t, "Admin", "admin@test.cd", account.RoleAdmin, "pwd", true)
	guardianToken := app.getToken(t, guardian)
	adminToken := app.getToken(t, admin)

	evaluate := func(t *testing.T, token string) access.Decision {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, "/v1/schools/"+sch.ID+"/access", token)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("evaluate code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp DecisionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling DecisionResponse: %v", err)
		}
		return resp.Decision
	}

	t.Run("unknown school is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/schools/nope/access", guardianToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("no request yet", func(t *testing.T) {
		if d := evaluate(t, guardianToken); d != access.DecisionMustRequest {
			t.Errorf("decision = %v, want %v", d, access.DecisionMustRequest)
		}
	})

	var requestID string
	t.Run("submit opens a pending request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/schools/"+sch.ID+"/access-requests", guardianToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var r access.Request
		if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
			t.Fatalf("unmarshalling Request: %v", err)
		}
		if !r.IsPending() {
			t.Errorf("status = %v, want %v", r.Status, access.StatusPending)
		}
		requestID = r.ID

		if d := evaluate(t, guardianToken); d != access.DecisionPendingApproval {
			t.Errorf("decision = %v, want %v", d, access.DecisionPendingApproval)
		}
	})

	t.Run("guardians cannot list requests", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/access-requests", guardianToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin lists pending requests", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/access-requests?school="+sch.ID+"&status=pending", adminToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var reqs []access.Request
		if err := json.Unmarshal(rec.Body.Bytes(), &reqs); err != nil {
			t.Fatalf("unmarshalling requests: %v", err)
		}
		if len(reqs) != 1 || reqs[0].ID != requestID {
			t.Errorf("unexpected requests: %+v", reqs)
		}
	})

	t.Run("guardians cannot decide", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/access-requests/"+requestID+"/decision", guardianToken,
			[]byte(`{"outcome": "accept"}`))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("invalid outcome", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/access-requests/"+requestID+"/decision", adminToken,
			[]byte(`{"outcome": "maybe"}`))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("admin accepts; access becomes granted", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/access-requests/"+requestID+"/decision", adminToken,
			[]byte(`{"outcome": "accept"}`))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var r access.Request
		if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
			t.Fatalf("unmarshalling Request: %v", err)
		}
		if !r.IsAccepted() || !r.DecidedAt.Valid || r.DecidedBy.String != admin.Email {
			t.Errorf("unexpected decided request: %+v", r)
		}

		if d := evaluate(t, guardianToken); d != access.DecisionGranted {
			t.Errorf("decision = %v, want %v", d, access.DecisionGranted)
		}
	})

	t.Run("deciding twice is a 400", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/access-requests/"+requestID+"/decision", adminToken,
			[]byte(`{"outcome": "reject"}`))
		app.server.ServeHTTP(rec, req)

		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error": "access request already decided"}`),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("deciding an unknown request is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/access-requests/nope/decision", adminToken,
			[]byte(`{"outcome": "accept"}`))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})
}
