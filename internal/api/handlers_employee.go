package api

import (
	"net/http"
	"strconv"

	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/service"
	"github.com/gorilla/mux"
)

// handleListEmployees handles GET /api/v1/employees
func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	input := &service.ListEmployeesInput{
		Limit:  queryInt(r, "limit", service.DefaultListLimit),
		Offset: queryInt(r, "offset", 0),
	}

	employees, err := s.employeeService.ListEmployees(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, employees)
}

// handleCreateEmployee handles POST /api/v1/employees
func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var input service.EmployeeInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	employee, err := s.employeeService.CreateEmployee(r.Context(), &input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, employee)
}

// handleGetEmployee handles GET /api/v1/employees/{id}
func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	employee, err := s.employeeService.GetEmployee(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, employee)
}

// handleUpdateEmployee handles PUT /api/v1/employees/{id}
func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	var input service.EmployeeInput
	if err := parseJSONBody(w, r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	employee, err := s.employeeService.UpdateEmployee(r.Context(), id, &input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, employee)
}

// handleDeleteEmployee handles DELETE /api/v1/employees/{id}
func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	result, err := s.employeeService.DeleteEmployee(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetHistory handles GET /api/v1/employees/{id}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	events, err := s.employeeService.GetHistory(r.Context(), id, queryInt(r, "limit", service.DefaultHistoryLimit))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// employeeID parses the {id} path variable, answering 400 when it is not a
// positive integer.
func employeeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, apperrors.NewInvalidParameterError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter. Missing or malformed values
// yield def; range clamping is left to the service.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
