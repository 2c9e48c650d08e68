package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/model"
)

// Call is one request observed by FakeDashboard.
type Call struct {
	Method string
	Path   string
	CSRF   string
}

// CountReply scripts one answer of the unread-count endpoint. A zero
// Status means 200.
type CountReply struct {
	Status int
	Body   string
}

// FakeDashboard is an in-process dashboard serving the login form, the
// root page, static assets, and the push and notification API.
type FakeDashboard struct {
	Server *httptest.Server

	// Fixed at construction; tests may change them before the first request.
	Username  string
	Password  string
	CSRFToken string
	VAPIDKey  string

	mu            sync.Mutex
	calls         []Call
	notifications []model.NotificationRecord
	subscriptions []model.Subscription
	countReplies  []CountReply
	failPaths     map[string]int
	requireLogin  bool
	sessions      map[string]bool
}

const sessionCookie = "session"

// NewFakeDashboard starts the dashboard and closes it with the test.
func NewFakeDashboard(t *testing.T) *FakeDashboard {
	t.Helper()

	d := &FakeDashboard{
		Username:  "admin",
		Password:  "hunter2",
		CSRFToken: "csrf-abc123",
		VAPIDKey:  "BServerKeyFromDashboard",
		failPaths: make(map[string]int),
		sessions:  make(map[string]bool),
	}

	r := mux.NewRouter()
	r.Use(d.record)
	r.HandleFunc("/login", d.loginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", d.loginSubmit).Methods(http.MethodPost)
	r.HandleFunc("/", d.auth(d.rootPage)).Methods(http.MethodGet)
	r.PathPrefix("/static/").HandlerFunc(d.static).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/push/vapid-public-key", d.auth(d.vapidKey)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/push/subscribe", d.auth(d.subscribe)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/push/unsubscribe", d.auth(d.unsubscribe)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/notifications/count", d.auth(d.count)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/mark-all-read", d.auth(d.markAllRead)).Methods(http.MethodPut)
	apiRouter.HandleFunc("/notifications/{id}/read", d.auth(d.markRead)).Methods(http.MethodPut)
	apiRouter.HandleFunc("/notifications", d.auth(d.list)).Methods(http.MethodGet)

	d.Server = httptest.NewServer(r)
	t.Cleanup(d.Server.Close)

	return d
}

// URL returns the dashboard base URL.
func (d *FakeDashboard) URL() string {
	return d.Server.URL
}

// RequireLogin makes every page and API route redirect to /login until a
// session cookie is presented.
func (d *FakeDashboard) RequireLogin() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireLogin = true
}

// SetNotifications replaces the server-side notification set.
func (d *FakeDashboard) SetNotifications(records ...model.NotificationRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append([]model.NotificationRecord(nil), records...)
}

// Notifications returns the current server-side notification set.
func (d *FakeDashboard) Notifications() []model.NotificationRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.NotificationRecord(nil), d.notifications...)
}

// QueueCountReplies scripts the next answers of the count endpoint. Once
// exhausted the endpoint reports the real unread count.
func (d *FakeDashboard) QueueCountReplies(replies ...CountReply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countReplies = append(d.countReplies, replies...)
}

// Fail makes every request to path answer with status.
func (d *FakeDashboard) Fail(path string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPaths[path] = status
}

// Subscriptions returns every subscription registered so far.
func (d *FakeDashboard) Subscriptions() []model.Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Subscription(nil), d.subscriptions...)
}

// Calls returns every request observed, in arrival order.
func (d *FakeDashboard) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsTo returns the requests made to method and path.
func (d *FakeDashboard) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (d *FakeDashboard) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.calls = append(d.calls, Call{Method: r.Method, Path: r.URL.Path, CSRF: r.Header.Get("X-CSRFToken")})
		status, fail := d.failPaths[r.URL.Path]
		d.mu.Unlock()

		if fail {
			writeJSON(w, status, api.MessageResponse{Success: false, Error: "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *FakeDashboard) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		required := d.requireLogin
		d.mu.Unlock()

		if required {
			c, err := r.Cookie(sessionCookie)
			d.mu.Lock()
			ok := err == nil && d.sessions[c.Value]
			d.mu.Unlock()
			if !ok {
				http.Redirect(w, r, "/login?next="+r.URL.Path, http.StatusFound)
				return
			}
		}
		next(w, r)
	}
}

func (d *FakeDashboard) loginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!doctype html><html><body>
<form method="post" action="/login">
<input type="hidden" name="csrf_token" value="%s"/>
<input name="username"><input name="password" type="password">
</form></body></html>`, d.CSRFToken)
}

func (d *FakeDashboard) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("csrf_token") != d.CSRFToken {
		http.Error(w, "The CSRF token is missing.", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != d.Username || r.PostForm.Get("password") != d.Password {
		d.loginPage(w, r)
		return
	}

	sid := "sid-" + strconv.Itoa(len(d.Calls()))
	d.mu.Lock()
	d.sessions[sid] = true
	d.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sid, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (d *FakeDashboard) rootPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	meta := ""
	if d.CSRFToken != "" {
		meta = fmt.Sprintf(`<meta name="csrf-token" content="%s">`, d.CSRFToken)
	}
	fmt.Fprintf(w, `<!doctype html><html><head>%s<title>iTrax</title></head><body></body></html>`, meta)
}

func (d *FakeDashboard) static(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/static/css/style.css":
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "body{margin:0}")
	case "/static/js/app.js", "/static/js/notifications.js":
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprintf(w, "// %s\n", r.URL.Path)
	default:
		http.NotFound(w, r)
	}
}

func (d *FakeDashboard) vapidKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.VAPIDKeyResponse{PublicKey: d.VAPIDKey})
}

func (d *FakeDashboard) subscribe(w http.ResponseWriter, r *http.Request) {
	if !d.checkCSRF(w, r) {
		return
	}

	var req api.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subscription.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, api.MessageResponse{Error: "Invalid subscription data"})
		return
	}

	d.mu.Lock()
	d.subscriptions = append(d.subscriptions, req.Subscription)
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, api.MessageResponse{Success: true, Message: "Subscribed"})
}

func (d *FakeDashboard) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if !d.checkCSRF(w, r) {
		return
	}

	var req api.UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.MessageResponse{Error: "Invalid request"})
		return
	}

	d.mu.Lock()
	kept := d.subscriptions[:0]
	for _, s := range d.subscriptions {
		if s.Endpoint != req.Endpoint {
			kept = append(kept, s)
		}
	}
	d.subscriptions = kept
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, api.MessageResponse{Success: true})
}

func (d *FakeDashboard) count(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	var scripted *CountReply
	if len(d.countReplies) > 0 {
		scripted = &d.countReplies[0]
		d.countReplies = d.countReplies[1:]
	}
	unread := 0
	for _, n := range d.notifications {
		if !n.IsRead {
			unread++
		}
	}
	d.mu.Unlock()

	if scripted != nil {
		status := scripted.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, scripted.Body)
		return
	}

	writeJSON(w, http.StatusOK, api.CountResponse{Success: true, UnreadCount: unread})
}

func (d *FakeDashboard) list(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = api.DefaultListLimit
	}
	limit = min(limit, api.MaxListLimit)

	d.mu.Lock()
	out := []model.NotificationRecord{}
	for _, n := range d.notifications {
		if unreadOnly && n.IsRead {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, n)
	}
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, api.ListResponse{Success: true, Notifications: out, Count: len(out)})
}

func (d *FakeDashboard) markRead(w http.ResponseWriter, r *http.Request) {
	if !d.checkCSRF(w, r) {
		return
	}

	id := model.RecordID(mux.Vars(r)["id"])

	d.mu.Lock()
	found := false
	for i := range d.notifications {
		if d.notifications[i].ID == id {
			d.notifications[i].IsRead = true
			found = true
		}
	}
	d.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, api.MessageResponse{Error: "Notification not found"})
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Success: true, Message: "Notification marked as read"})
}

func (d *FakeDashboard) markAllRead(w http.ResponseWriter, r *http.Request) {
	if !d.checkCSRF(w, r) {
		return
	}

	d.mu.Lock()
	for i := range d.notifications {
		d.notifications[i].IsRead = true
	}
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, api.MessageResponse{Success: true})
}

func (d *FakeDashboard) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if d.CSRFToken == "" || r.Header.Get("X-CSRFToken") == d.CSRFToken {
		return true
	}
	writeJSON(w, http.StatusBadRequest, api.MessageResponse{Error: "The CSRF token is missing."})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
