package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/models"
	"github.com/emp-backend/internal/service"
	"github.com/emp-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmployeeTestServer wires a real service over in-memory storage
func newEmployeeTestServer(t *testing.T) *Server {
	t.Helper()
	svc := service.NewEmployeeService(storage.NewMemoryEmployeeRepository(), nil, storage.NewMemoryAuditSink())
	return createTestServer(svc, nil)
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func createEmployee(t *testing.T, server *Server, first, last, email string) *models.Employee {
	t.Helper()
	w := serve(server, jsonRequest(t, "POST", "/api/v1/employees", map[string]string{
		"firstName": first,
		"lastName":  last,
		"emailId":   email,
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var employee models.Employee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&employee))
	return &employee
}

func TestEmployeeCRUD(t *testing.T) {
	server := newEmployeeTestServer(t)

	created := createEmployee(t, server, "Ramesh", "Fadatare", "ramesh@example.com")
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Ramesh", created.FirstName)

	path := fmt.Sprintf("/api/v1/employees/%d", created.ID)

	w := serve(server, httptest.NewRequest("GET", path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Employee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "ramesh@example.com", got.EmailID)

	w = serve(server, jsonRequest(t, "PUT", path, map[string]string{
		"firstName": "Ramesh",
		"lastName":  "F",
		"emailId":   "ramesh@example.com",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Employee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "F", updated.LastName)

	w = serve(server, httptest.NewRequest("GET", "/api/v1/employees", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Employee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)

	w = serve(server, httptest.NewRequest("DELETE", path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	w = serve(server, httptest.NewRequest("GET", path, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperrors.CodeEmployeeNotFound, body.Code)
	assert.Equal(t, fmt.Sprintf("employee not exist with id: %d", created.ID), body.Message)

	w = serve(server, httptest.NewRequest("GET", path+"/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.EmployeeEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	require.Len(t, history, 3)
	assert.Equal(t, models.ActionDeleted, history[0].Action)
	assert.Equal(t, models.ActionCreated, history[2].Action)
}

func TestListEmployees_EmptyIsArray(t *testing.T) {
	w := serve(newEmployeeTestServer(t), httptest.NewRequest("GET", "/api/v1/employees", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListEmployees_QueryParams(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: service.DefaultListLimit, wantOffset: 0},
		{name: "explicit", query: "?limit=5&offset=10", wantLimit: 5, wantOffset: 10},
		{name: "non-numeric limit", query: "?limit=abc", wantLimit: service.DefaultListLimit, wantOffset: 0},
		{name: "non-numeric offset", query: "?offset=x", wantLimit: service.DefaultListLimit, wantOffset: 0},
		{name: "negative passes through", query: "?limit=-10&offset=-5", wantLimit: -10, wantOffset: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *service.ListEmployeesInput
			server := createTestServer(&mockEmployeeService{
				listFunc: func(ctx context.Context, input *service.ListEmployeesInput) ([]*models.Employee, error) {
					captured = input
					return []*models.Employee{}, nil
				},
			}, nil)

			w := serve(server, httptest.NewRequest("GET", "/api/v1/employees"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)
			require.NotNil(t, captured)
			assert.Equal(t, tt.wantLimit, captured.Limit)
			assert.Equal(t, tt.wantOffset, captured.Offset)
		})
	}
}

func TestEmployeeHandlers_InvalidID(t *testing.T) {
	server := newEmployeeTestServer(t)

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/v1/employees/abc", nil),
		httptest.NewRequest("GET", "/api/v1/employees/0", nil),
		httptest.NewRequest("DELETE", "/api/v1/employees/-1", nil),
		httptest.NewRequest("GET", "/api/v1/employees/abc/history", nil),
		jsonRequest(t, "PUT", "/api/v1/employees/1.5", map[string]string{"firstName": "x"}),
	} {
		t.Run(req.Method+" "+req.URL.Path, func(t *testing.T) {
			w := serve(server, req)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperrors.CodeInvalidParameter, decodeError(t, w).Code)
		})
	}
}

func TestCreateEmployee_BadBodies(t *testing.T) {
	server := newEmployeeTestServer(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{name: "malformed json", body: "invalid json", wantCode: apperrors.CodeInvalidBody},
		{name: "unknown field", body: `{"firstName":"a","lastName":"b","emailId":"a@b.co","salary":1}`, wantCode: apperrors.CodeInvalidBody},
		{name: "trailing data", body: `{"firstName":"a","lastName":"b","emailId":"a@b.co"} {"x":1}`, wantCode: apperrors.CodeInvalidBody},
		{name: "two objects", body: `{"firstName":"a","lastName":"b","emailId":"a@b.co"}{}`, wantCode: apperrors.CodeInvalidBody},
		{name: "empty body", body: "", wantCode: apperrors.CodeInvalidBody},
		{name: "missing fields", body: map[string]string{"firstName": "a"}, wantCode: apperrors.CodeValidation},
		{name: "bad email", body: map[string]string{"firstName": "a", "lastName": "b", "emailId": "nope"}, wantCode: apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, jsonRequest(t, "POST", "/api/v1/employees", tt.body))
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestCreateEmployee_BodyTooLarge(t *testing.T) {
	server := newEmployeeTestServer(t)

	body := `{"firstName":"` + strings.Repeat("a", maxBodyBytes) + `","lastName":"b","emailId":"a@b.co"}`
	w := serve(server, jsonRequest(t, "POST", "/api/v1/employees", body))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, apperrors.CodeRequestTooLarge, decodeError(t, w).Code)

	// Trailing whitespace is not trailing data.
	w = serve(server, jsonRequest(t, "POST", "/api/v1/employees", `{"firstName":"a","lastName":"b","emailId":"a@b.co"}`+"\n\n"))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateEmployee_ValidationDetails(t *testing.T) {
	server := newEmployeeTestServer(t)

	w := serve(server, jsonRequest(t, "POST", "/api/v1/employees", map[string]string{"lastName": "b", "emailId": "nope"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeError(t, w)
	assert.Equal(t, "is required", body.Details["firstName"])
	assert.Equal(t, "must be a valid email address", body.Details["emailId"])
}

func TestCreateEmployee_DuplicateEmail(t *testing.T) {
	server := newEmployeeTestServer(t)
	createEmployee(t, server, "A", "B", "same@example.com")

	w := serve(server, jsonRequest(t, "POST", "/api/v1/employees", map[string]string{
		"firstName": "C",
		"lastName":  "D",
		"emailId":   "Same@Example.com",
	}))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeDuplicateEmail, decodeError(t, w).Code)
}

func TestUpdateEmployee_NotFound(t *testing.T) {
	w := serve(newEmployeeTestServer(t), jsonRequest(t, "PUT", "/api/v1/employees/42", map[string]string{
		"firstName": "A",
		"lastName":  "B",
		"emailId":   "a@example.com",
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistory_PassesLimit(t *testing.T) {
	var gotLimit int
	server := createTestServer(&mockEmployeeService{
		historyFunc: func(ctx context.Context, id int64, limit int) ([]*models.EmployeeEvent, error) {
			gotLimit = limit
			return []*models.EmployeeEvent{}, nil
		},
	}, nil)

	serve(server, httptest.NewRequest("GET", "/api/v1/employees/1/history?limit=7", nil))
	assert.Equal(t, 7, gotLimit)

	serve(server, httptest.NewRequest("GET", "/api/v1/employees/1/history", nil))
	assert.Equal(t, service.DefaultHistoryLimit, gotLimit)
}

func TestServiceErrors_HideCause(t *testing.T) {
	server := createTestServer(&mockEmployeeService{
		getFunc: func(ctx context.Context, id int64) (*models.Employee, error) {
			return nil, apperrors.NewDatabaseError("get employee", errors.New("password authentication failed"))
		},
		listFunc: func(ctx context.Context, input *service.ListEmployeesInput) ([]*models.Employee, error) {
			return nil, errors.New("plain error")
		},
	}, nil)

	w := serve(server, httptest.NewRequest("GET", "/api/v1/employees/1", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Equal(t, apperrors.CodeDatabase, decodeError(t, w).Code)

	w = serve(server, httptest.NewRequest("GET", "/api/v1/employees", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeInternal, decodeError(t, w).Code)
}
