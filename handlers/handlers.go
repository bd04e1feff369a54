package handlers

import (
	"encoding/csv"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"worklog/auth"
	"worklog/config"
	"worklog/i18n"
	"worklog/models"
	"worklog/store"

	"github.com/dchest/captcha"
	"github.com/gorilla/csrf"
)

var manager *store.Manager

func RegisterHandlers(mux *http.ServeMux, m *store.Manager) {
	manager = m

	mux.HandleFunc("/", IndexHandler)
	mux.HandleFunc("/login", LoginHandler)
	mux.HandleFunc("/logout", LogoutHandler)
	mux.HandleFunc("/dashboard", DashboardHandler)
	mux.HandleFunc("/activities", ActivitiesHandler)
	mux.HandleFunc("/activities/add", AddActivityHandler)
	mux.HandleFunc("/activities/update", UpdateActivityHandler)
	mux.HandleFunc("/activities/delete", DeleteActivityHandler)
	mux.HandleFunc("/activities/export", ExportActivitiesHandler)
	mux.HandleFunc("/change-password", ChangePasswordHandler)
	mux.HandleFunc("/sync", SyncNowHandler)
	mux.HandleFunc("/report", ReportHandler)
	mux.Handle("/captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))

	// Companion API endpoints (JSON)
	mux.HandleFunc("/api/v1/login", APILoginHandler)
	mux.HandleFunc("/api/v1/activities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			APIListActivitiesHandler(w, r)
		case http.MethodPost:
			APIAddActivityHandler(w, r)
		case http.MethodPut:
			APIUpdateActivityHandler(w, r)
		case http.MethodDelete:
			APIDeleteActivityHandler(w, r)
		default:
			sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: "Method not allowed"})
		}
	})
	mux.HandleFunc("/api/v1/report", APIReportHandler)
	mux.HandleFunc("/api/v1/taxonomy", APITaxonomyHandler)
}

// currentSession resolves the cookie identity to its live in-memory
// session. A valid cookie without a session (e.g. after a restart) counts
// as logged out.
func currentSession(r *http.Request) *store.Session {
	username := auth.GetUsername(r)
	if username == "" {
		return nil
	}
	return manager.Get(username)
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if currentSession(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, "index.html", map[string]any{"AppName": config.AppConfig.AppName})
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if r.Method == http.MethodPost {
		ip := getClientIP(r)
		if !loginLimiter.Allow(ip) {
			loginError(w, r, http.StatusTooManyRequests, i18n.T(lang, "TooManyAttempts"))
			return
		}

		// After a failed attempt the form carries a captcha.
		if loginLimiter.HasFailures(ip) {
			id := r.FormValue("captcha_id")
			solution := r.FormValue("captcha_solution")
			if id == "" || !captcha.VerifyString(id, solution) {
				loginError(w, r, http.StatusBadRequest, i18n.T(lang, "CaptchaWrong"))
				return
			}
		}

		username := r.FormValue("username")
		password := r.FormValue("password")

		sess, ok, err := manager.Login(r.Context(), username, password)
		if err != nil {
			http.Error(w, i18n.T(lang, "StoreUnavailable"), http.StatusServiceUnavailable)
			return
		}
		if !ok {
			loginLimiter.RecordFailure(ip)
			loginError(w, r, http.StatusUnauthorized, i18n.T(lang, "InvalidCredentials"))
			return
		}

		loginLimiter.Reset(ip)
		auth.SetSession(w, r, sess.Username(), sess.Role())
		w.Header().Set("HX-Redirect", "/dashboard")
		return
	}

	data := map[string]any{}
	if loginLimiter.HasFailures(getClientIP(r)) {
		data["CaptchaID"] = captcha.New()
	}
	renderTemplate(w, r, "login.html", data)
}

// loginError mirrors the HTMX convention: triggers only fire on 2xx, so
// HTMX requests get a 200 with an error trigger instead of the real status.
func loginError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("HX-Trigger", "loginError")
	if r.Header.Get("HX-Request") == "true" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(status)
	}
	w.Write([]byte(message))
}

func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if username := auth.GetUsername(r); username != "" {
		// Best-effort flush inside; a failed sync never blocks logout.
		manager.Logout(r.Context(), username)
	}
	auth.ClearSession(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	mine := sess.Mine()
	renderTemplate(w, r, "dashboard.html", map[string]any{
		"Username":        sess.Username(),
		"IsSupervisor":    sess.Role() == models.RoleSupervisor,
		"KPI":             store.KPIs(mine),
		"HoursByMacro":    store.HoursByMacro(mine),
		"ReportBreakdown": store.ReportBreakdown(mine),
		"SampleBreakdown": store.SampleBreakdown(mine),
	})
}

func ActivitiesHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	records, opts := filteredView(sess, r)
	filtered := store.Filter(records, opts)
	page, size := pageParams(r)
	pages := store.TotalPages(len(filtered), size)

	renderTemplate(w, r, "activities.html", map[string]any{
		"Username":     sess.Username(),
		"IsSupervisor": sess.Role() == models.RoleSupervisor,
		"Records":      store.Page(filtered, page, size),
		"Total":        len(filtered),
		"Page":         page,
		"PageSize":     size,
		"TotalPages":   pages,
		"Filter":       opts,
	})
}

func AddActivityHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rec := recordFromForm(r)
	if _, err := sess.InsertActivity(r.Context(), rec); err != nil {
		mutationError(w, r, err)
		return
	}

	w.Header().Set("HX-Redirect", "/activities")
}

func UpdateActivityHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil || !canTouch(sess, id) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	rec := recordFromForm(r)
	if err := sess.UpdateActivity(r.Context(), id, rec); err != nil {
		mutationError(w, r, err)
		return
	}

	w.Header().Set("HX-Redirect", "/activities")
}

func DeleteActivityHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil || !canTouch(sess, id) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := sess.DeleteActivity(r.Context(), id); err != nil {
		mutationError(w, r, err)
		return
	}

	w.Header().Set("HX-Trigger", "activityChanged")
	w.WriteHeader(http.StatusOK)
}

func ExportActivitiesHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	records, opts := filteredView(sess, r)
	filtered := store.Filter(records, opts)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activities.csv\"")

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write(models.ActivityColumns)
	for _, rec := range filtered {
		writer.Write(store.RecordRow(rec))
	}
}

func ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	old := r.FormValue("old_password")
	newPassword := r.FormValue("new_password")
	confirm := r.FormValue("confirm_password")

	if err := sess.ChangePassword(r.Context(), old, newPassword, confirm); err != nil {
		mutationError(w, r, err)
		return
	}

	// Old API tokens die with the old password.
	auth.DeleteAPITokens(sess.Username())

	w.Header().Set("HX-Trigger", "passwordUpdated")
	w.WriteHeader(http.StatusOK)
}

func SyncNowHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lang := i18n.DetectLanguage(r)
	if err := sess.Flush(r.Context()); err != nil {
		w.Header().Set("HX-Retarget", "#sync-message")
		w.Write([]byte(i18n.T(lang, "FlushFailed")))
		return
	}
	w.Write([]byte(i18n.T(lang, "SyncOK")))
}

func ReportHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || sess.Role() != models.RoleSupervisor {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	all := sess.Activities()
	filtered := store.Filter(all, filterOptions(r, ""))

	renderTemplate(w, r, "report.html", map[string]any{
		"Username":        sess.Username(),
		"IsSupervisor":    true,
		"Records":         filtered,
		"KPI":             store.KPIs(filtered),
		"HoursByMacro":    store.HoursByMacro(filtered),
		"CountByOwner":    store.CountByOwner(filtered),
		"ReportBreakdown": store.ReportBreakdown(filtered),
		"SampleBreakdown": store.SampleBreakdown(filtered),
	})
}

// filteredView returns the records visible to the session (everything for a
// supervisor, own records otherwise) plus the filter parsed from the query.
func filteredView(sess *store.Session, r *http.Request) ([]models.ActivityRecord, store.FilterOptions) {
	if sess.Role() == models.RoleSupervisor {
		return sess.Activities(), filterOptions(r, r.URL.Query().Get("owner"))
	}
	return sess.Mine(), filterOptions(r, "")
}

func filterOptions(r *http.Request, owner string) store.FilterOptions {
	q := r.URL.Query()
	opts := store.FilterOptions{
		Owner:  owner,
		Search: q.Get("q"),
	}
	if from, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		opts.From = from
	}
	if to, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		opts.To = to
	}
	return opts
}

func pageParams(r *http.Request) (page, size int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ = strconv.Atoi(q.Get("size"))
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size
}

// recordFromForm builds a record from the activity form. Unparsable
// numbers degrade to missing, an unparsable timestamp falls back to now.
func recordFromForm(r *http.Request) models.ActivityRecord {
	ts := parseFormTimestamp(r.FormValue("timestamp"))
	return models.ActivityRecord{
		Timestamp:         ts,
		MacroCategory:     r.FormValue("macro_category"),
		Subcategory:       r.FormValue("subcategory"),
		Activity:          r.FormValue("activity"),
		Notes:             r.FormValue("notes"),
		Hours:             models.ParseOptInt(r.FormValue("hours")),
		Minutes:           models.ParseOptInt(r.FormValue("minutes")),
		SampleCount:       models.ParseOptInt(r.FormValue("sample_count")),
		SampleDiseaseType: r.FormValue("sample_disease_type"),
		ReportCount:       models.ParseOptInt(r.FormValue("report_count")),
		ReportDiseaseType: r.FormValue("report_disease_type"),
	}
}

func parseFormTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04", models.TimeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}

// canTouch allows supervisors to edit anything and users only their own
// records.
func canTouch(sess *store.Session, id int) bool {
	if sess.Role() == models.RoleSupervisor {
		return true
	}
	for _, rec := range sess.Mine() {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// mutationError renders a validation failure inline and a flush failure as
// a warning; in the latter case the in-memory change is already applied.
func mutationError(w http.ResponseWriter, r *http.Request, err error) {
	lang := i18n.DetectLanguage(r)
	if store.IsValidation(err) {
		w.Header().Set("HX-Retarget", "#error-message")
		w.Write([]byte(i18n.T(lang, messageKey(err))))
		return
	}
	w.Header().Set("HX-Retarget", "#sync-message")
	w.Write([]byte(i18n.T(lang, "FlushFailed")))
}

func messageKey(err error) string {
	switch {
	case errors.Is(err, store.ErrMissingClassification):
		return "MissingClassification"
	case errors.Is(err, store.ErrInvalidClassification):
		return "UnknownClassification"
	case errors.Is(err, store.ErrHoursRange):
		return "HoursOutOfRange"
	case errors.Is(err, store.ErrMinutesRange):
		return "MinutesOutOfRange"
	case errors.Is(err, store.ErrNotFound):
		return "ActivityNotFound"
	case errors.Is(err, store.ErrWrongPassword):
		return "WrongPassword"
	case errors.Is(err, store.ErrPasswordMismatch):
		return "PasswordMismatch"
	case errors.Is(err, auth.ErrPasswordTooShort):
		return "PasswordTooShort"
	default:
		return "InternalServerError"
	}
}

func renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	lang := i18n.DetectLanguage(r)

	funcMap := template.FuncMap{
		"T": func(key string) string {
			return i18n.T(lang, key)
		},
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFiles("templates/layout.html", "templates/"+name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Prepare CSRF field
	csrfField := csrf.TemplateField(r)

	// If data is a map, ensure AppName and Lang are there
	if m, ok := data.(map[string]any); ok {
		if _, exists := m["AppName"]; !exists {
			m["AppName"] = config.AppConfig.AppName
		}
		m["Lang"] = lang
		m["csrfField"] = csrfField
	} else if data == nil {
		data = map[string]any{
			"AppName":   config.AppConfig.AppName,
			"Lang":      lang,
			"csrfField": csrfField,
		}
	}

	tmpl.ExecuteTemplate(w, "layout", data)
}
