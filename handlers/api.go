package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"worklog/auth"
	"worklog/i18n"
	"worklog/models"
	"worklog/store"
	"worklog/taxonomy"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getAPISession resolves the token header to a live session. A token that
// outlived its session (server restart) counts as expired.
func getAPISession(r *http.Request) *store.Session {
	token := r.Header.Get("X-API-Token")
	if token == "" {
		return nil
	}
	apiSess, ok := auth.GetAPISession(token)
	if !ok {
		return nil
	}
	return manager.Get(apiSess.Username)
}

func APILoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if r.Method != http.MethodPost {
		sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: i18n.T(lang, "MethodNotAllowed")})
		return
	}

	ip := getClientIP(r)
	if !loginLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: i18n.T(lang, "TooManyAttempts")})
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	sess, ok, err := manager.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		sendJSONResponse(w, http.StatusServiceUnavailable, APIResponse{Status: "error", Message: i18n.T(lang, "StoreUnavailable")})
		return
	}
	if !ok {
		loginLimiter.RecordFailure(ip)
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidCredentials")})
		return
	}

	loginLimiter.Reset(ip)
	token := auth.CreateAPIToken(sess.Username(), sess.Role())

	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status: "success",
		Data: map[string]any{
			"token":    token,
			"username": sess.Username(),
			"role":     sess.Role(),
		},
	})
}

func APIListActivitiesHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	sess := getAPISession(r)
	if sess == nil {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return
	}

	records, opts := filteredView(sess, r)
	filtered := store.Filter(records, opts)
	page, size := pageParams(r)

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: map[string]any{
		"activities":  store.Page(filtered, page, size),
		"total":       len(filtered),
		"page":        page,
		"total_pages": store.TotalPages(len(filtered), size),
	}})
}

func APIAddActivityHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	sess := getAPISession(r)
	if sess == nil {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return
	}

	var input activityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	rec, err := sess.InsertActivity(r.Context(), input.record())
	if err != nil {
		sendMutationError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{Status: "success", Data: map[string]int{"id": rec.ID}})
}

func APIUpdateActivityHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	sess := getAPISession(r)
	if sess == nil {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return
	}

	var input activityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}
	if !canTouch(sess, input.ID) {
		sendJSONResponse(w, http.StatusForbidden, APIResponse{Status: "error", Message: i18n.T(lang, "Forbidden")})
		return
	}

	if err := sess.UpdateActivity(r.Context(), input.ID, input.record()); err != nil {
		sendMutationError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "ActivitySaved")})
}

func APIDeleteActivityHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	sess := getAPISession(r)
	if sess == nil {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return
	}

	var input struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}
	if !canTouch(sess, input.ID) {
		sendJSONResponse(w, http.StatusForbidden, APIResponse{Status: "error", Message: i18n.T(lang, "Forbidden")})
		return
	}

	if err := sess.DeleteActivity(r.Context(), input.ID); err != nil {
		sendMutationError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "ActivityDeleted")})
}

func APIReportHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	sess := getAPISession(r)
	if sess == nil {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return
	}
	if sess.Role() != models.RoleSupervisor {
		sendJSONResponse(w, http.StatusForbidden, APIResponse{Status: "error", Message: i18n.T(lang, "Forbidden")})
		return
	}

	filtered := store.Filter(sess.Activities(), filterOptions(r, r.URL.Query().Get("owner")))

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: map[string]any{
		"kpi":              store.KPIs(filtered),
		"hours_by_macro":   store.HoursByMacro(filtered),
		"count_by_owner":   store.CountByOwner(filtered),
		"report_breakdown": store.ReportBreakdown(filtered),
		"sample_breakdown": store.SampleBreakdown(filtered),
		"total":            len(filtered),
	}})
}

func APITaxonomyHandler(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: taxonomy.Catalog})
}

// activityInput is the JSON shape of an activity. Numeric fields are
// pointers so an absent field stays distinct from an explicit zero.
type activityInput struct {
	ID                int    `json:"id,omitempty"`
	Timestamp         string `json:"timestamp"`
	MacroCategory     string `json:"macro_category"`
	Subcategory       string `json:"subcategory"`
	Activity          string `json:"activity"`
	Notes             string `json:"notes"`
	Hours             *int   `json:"hours"`
	Minutes           *int   `json:"minutes"`
	SampleCount       *int   `json:"sample_count"`
	SampleDiseaseType string `json:"sample_disease_type"`
	ReportCount       *int   `json:"report_count"`
	ReportDiseaseType string `json:"report_disease_type"`
}

func (in activityInput) record() models.ActivityRecord {
	return models.ActivityRecord{
		Timestamp:         parseFormTimestamp(in.Timestamp),
		MacroCategory:     in.MacroCategory,
		Subcategory:       in.Subcategory,
		Activity:          in.Activity,
		Notes:             in.Notes,
		Hours:             optFromPtr(in.Hours),
		Minutes:           optFromPtr(in.Minutes),
		SampleCount:       optFromPtr(in.SampleCount),
		SampleDiseaseType: in.SampleDiseaseType,
		ReportCount:       optFromPtr(in.ReportCount),
		ReportDiseaseType: in.ReportDiseaseType,
	}
}

func optFromPtr(p *int) models.OptInt {
	if p == nil {
		return models.OptInt{}
	}
	return models.OptInt{Value: *p, Valid: true}
}

func sendMutationError(w http.ResponseWriter, lang string, err error) {
	if store.IsValidation(err) {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		sendJSONResponse(w, status, APIResponse{Status: "error", Message: i18n.T(lang, messageKey(err))})
		return
	}
	// The change is applied locally; only the remote sync failed.
	sendJSONResponse(w, http.StatusAccepted, APIResponse{Status: "warning", Message: i18n.T(lang, "FlushFailed")})
}
